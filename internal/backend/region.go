package backend

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// Region addresses a block inside a column-major buffer whose columns are LD
// elements apart.
type Region struct {
	Row, Col, Rows, Cols, LD int
}

func RegionOf[T dtype.Scalar](b container.Block[T]) Region {
	ld, _ := b.Of.Dims()
	return Region{Row: b.Row, Col: b.Col, Rows: b.Rows, Cols: b.Cols, LD: ld}
}

// Whole is the region covering a rows x cols matrix.
func Whole(rows, cols int) Region {
	return Region{Rows: rows, Cols: cols, LD: rows}
}

// Index is the buffer offset of region element (i, j).
func (r Region) Index(i, j int) int { return (r.Col+j)*r.LD + r.Row + i }

// Column returns the buffer bounds of region column j.
func (r Region) Column(j int) (lo, hi int) {
	lo = r.Index(0, j)
	return lo, lo + r.Rows
}

// Diag is the length of the region's main diagonal.
func (r Region) Diag() int { return min(r.Rows, r.Cols) }

// MeanFromSums turns per-column or per-row sums of a rows x cols matrix into
// means. With noDiag the entries that lost a diagonal element average over
// one element fewer.
func MeanFromSums[T dtype.Real](sums []T, rows, cols int, axis Axis, noDiag bool) (*container.Vector[float64], error) {
	n := rows
	if axis == Rows {
		n = cols
	}
	out, err := container.NewVector[float64](len(sums))
	if err != nil {
		return nil, err
	}
	dst := out.Data()
	for i, s := range sums {
		count := n
		if noDiag && i < min(rows, cols) {
			count--
		}
		if count == 0 {
			return nil, fmt.Errorf("mean_axis: %w: %s %d has no off-diagonal elements", errdefs.ErrDimensionMismatch, axis, i)
		}
		dst[i] = float64(s) / float64(count)
	}
	return out, nil
}
