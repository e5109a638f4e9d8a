// Package remote serves matrix reductions over Arrow Flight.
//
// A client opens a DoExchange stream whose descriptor path names the
// reduction, then sends record batches holding one fixed size list column.
// Each list entry is a matrix column of float64 values. The server answers
// every batch with a single-column batch of results.
package remote

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

// Op names a reduction over the columns or rows of a matrix.
type Op string

const (
	SumCols  Op = "sum_cols"
	SumRows  Op = "sum_rows"
	NormCols Op = "norm_cols"
)

// Reduce runs op over m with d. Sums run on d's GPU backend when one is set;
// the matrix is staged for the call and released afterwards.
func Reduce(ctx context.Context, d *linalg.Dispatcher, op Op, m *container.Matrix[float64]) (*container.Vector[float64], error) {
	switch op {
	case SumCols, SumRows:
		axis := backend.Cols
		if op == SumRows {
			axis = backend.Rows
		}
		return sumAxis(ctx, d, m, axis)
	case NormCols:
		_, cols := m.Dims()
		out, err := container.NewVector[float64](cols)
		if err != nil {
			return nil, err
		}
		for j := 0; j < cols; j++ {
			col, err := m.Col(j)
			if err != nil {
				return nil, err
			}
			n, err := linalg.Norm[float64](ctx, d, col)
			if err != nil {
				return nil, err
			}
			out.Set(j, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("remote: %w: %q", errdefs.ErrUnsupportedOp, op)
}

func sumAxis(ctx context.Context, d *linalg.Dispatcher, m *container.Matrix[float64], axis backend.Axis) (*container.Vector[float64], error) {
	var in container.MatrixOperand[float64] = m
	if g := d.GPU(); g != nil {
		dm, err := gpu.WrapMatrix(g, m)
		if err != nil {
			return nil, err
		}
		defer func() { _ = dm.Release() }()
		in = dm
	}
	res, err := linalg.SumAxis[float64](ctx, d, in, axis, false)
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case *container.Vector[float64]:
		return v, nil
	case *gpu.Vector[float64]:
		defer func() { _ = v.Release() }()
		return v.ToHost()
	}
	return nil, fmt.Errorf("remote: unexpected result %T", res)
}
