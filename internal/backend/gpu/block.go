package gpu

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// regionOf picks the part of a rows x cols matrix a kernel reduces.
type regionOf func(rows, cols int) (backend.Region, error)

func whole(rows, cols int) (backend.Region, error) { return backend.Whole(rows, cols), nil }

func blockRegion[T dtype.Scalar](b container.Block[T]) regionOf {
	return func(int, int) (backend.Region, error) {
		if err := b.Check(); err != nil {
			return backend.Region{}, err
		}
		return backend.RegionOf(b), nil
	}
}

func square(pick regionOf) regionOf {
	return func(rows, cols int) (backend.Region, error) {
		rg, err := pick(rows, cols)
		if err == nil && rg.Rows != rg.Cols {
			err = fmt.Errorf("%w: %dx%d is not square", errdefs.ErrDimensionMismatch, rg.Rows, rg.Cols)
		}
		return rg, err
	}
}

// gather copies rg out of a column-major buffer into a packed scratch
// buffer, zeroing the region's diagonal when noDiag is set.
func gather[T dtype.Scalar](src []T, rg backend.Region, noDiag bool) []T {
	part := make([]T, 0, rg.Rows*rg.Cols)
	for j := 0; j < rg.Cols; j++ {
		lo, hi := rg.Column(j)
		part = append(part, src[lo:hi]...)
	}
	if noDiag {
		for i := 0; i < rg.Diag(); i++ {
			part[i*rg.Rows+i] = 0
		}
	}
	return part
}

func diagonal[T dtype.Scalar](src []T, rg backend.Region) []T {
	part := make([]T, rg.Diag())
	for i := range part {
		part[i] = src[rg.Index(i, i)]
	}
	return part
}

// reduceRegion stages the matrix a and runs a single-value kernel over the
// region pick selects.
func (k Kernels[T]) reduceRegion(op, kernel string, a container.MatrixOperand[T], pick regionOf, body func(src []T, rg backend.Region) T) (res T, err error) {
	c, err := begin[T](k.b, op)
	if err != nil {
		return res, err
	}
	defer func() { c.end(err) }()
	ra, err := c.mat(a)
	if err != nil {
		return res, err
	}
	rg, err := pick(ra.rows, ra.cols)
	if err != nil {
		return res, c.errorf("%w", err)
	}
	h, err := c.load(ra)
	if err != nil {
		return res, err
	}
	n := ra.len()
	return c.scalar(kernel, []*device.Handle{h}, func(bufs [][]byte) T {
		return body(elems[T](bufs[0], n), rg)
	})
}

func (k Kernels[T]) sumRegionAxis(a container.MatrixOperand[T], pick regionOf, axis backend.Axis, noDiag bool) (out *Vector[T], err error) {
	c, err := begin[T](k.b, "sum_axis")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	if axis != backend.Cols && axis != backend.Rows {
		return nil, c.errorf("%w: axis %d", errdefs.ErrUnsupportedOp, axis)
	}
	ra, err := c.mat(a)
	if err != nil {
		return nil, err
	}
	rg, err := pick(ra.rows, ra.cols)
	if err != nil {
		return nil, c.errorf("%w", err)
	}
	h, err := c.load(ra)
	if err != nil {
		return nil, err
	}
	n := rg.Cols
	if axis == backend.Rows {
		n = rg.Rows
	}
	if out, err = c.vector(n); err != nil {
		return nil, err
	}
	total := ra.len()
	err = c.launch("sum_"+axis.String(), []*device.Handle{h, out.h}, func(bufs [][]byte) {
		src := gather(elems[T](bufs[0], total), rg, noDiag)
		dst := elems[T](bufs[1], n)
		// One work group per output element.
		if axis == backend.Cols {
			for j := range dst {
				dst[j] = treeReduce(src[j*rg.Rows:(j+1)*rg.Rows], add[T])
			}
			return
		}
		row := make([]T, rg.Cols)
		for i := range dst {
			for j := range row {
				row[j] = src[j*rg.Rows+i]
			}
			dst[i] = treeReduce(row, add[T])
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Trace sums the leading min(rows, cols) diagonal.
func (k Kernels[T]) Trace(a container.MatrixOperand[T]) (T, error) {
	return k.reduceRegion("trace", "trace", a, whole, func(src []T, rg backend.Region) T {
		return treeReduce(diagonal(src, rg), add[T])
	})
}

func (k Kernels[T]) BlockSum(b container.Block[T], noDiag bool) (T, error) {
	return k.reduceRegion("sum", "block_sum", b.Of, blockRegion(b), func(src []T, rg backend.Region) T {
		return treeReduce(gather(src, rg, noDiag), add[T])
	})
}

func (k Kernels[T]) SumSymmetric(a container.MatrixOperand[T], noDiag bool) (T, error) {
	return k.sumSymmetric(a, whole, noDiag)
}

func (k Kernels[T]) BlockSumSymmetric(b container.Block[T], noDiag bool) (T, error) {
	return k.sumSymmetric(b.Of, blockRegion(b), noDiag)
}

func (k Kernels[T]) sumSymmetric(a container.MatrixOperand[T], pick regionOf, noDiag bool) (T, error) {
	return k.reduceRegion("sum_symmetric", "sum_symmetric", a, square(pick), func(src []T, rg backend.Region) T {
		upper := make([]T, 0, rg.Rows*(rg.Rows-1)/2)
		for j := 1; j < rg.Cols; j++ {
			lo, _ := rg.Column(j)
			upper = append(upper, src[lo:lo+j]...)
		}
		sum := treeReduce(upper, add[T])
		sum += sum
		if !noDiag {
			sum += treeReduce(diagonal(src, rg), add[T])
		}
		return sum
	})
}

func (k Kernels[T]) BlockSumAxis(b container.Block[T], axis backend.Axis, noDiag bool) (*Vector[T], error) {
	return k.sumRegionAxis(b.Of, blockRegion(b), axis, noDiag)
}

// MatrixMax returns the largest element of a.
func MatrixMax[T dtype.Real](b *Backend, a container.MatrixOperand[T]) (T, error) {
	return For[T](b).reduceRegion("max", "matrix_max", a, whole, func(src []T, rg backend.Region) T {
		return treeReduce(gather(src, rg, false), func(x, y T) T { return max(x, y) })
	})
}

// MatrixMean returns the mean of every element of a as float64. The sum
// accumulates in T.
func MatrixMean[T dtype.Real](b *Backend, a container.MatrixOperand[T]) (float64, error) {
	sum, err := For[T](b).MatrixSum(a, false)
	if err != nil {
		return 0, err
	}
	r, c := a.Dims()
	return float64(sum) / float64(r*c), nil
}

// MeanAxis sums along axis on the device and finishes the division on the
// host.
func MeanAxis[T dtype.Real](b *Backend, a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (*container.Vector[float64], error) {
	sums, err := For[T](b).SumAxis(a, axis, noDiag)
	if err != nil {
		return nil, err
	}
	host, err := sums.MoveToHost()
	if err != nil {
		_ = sums.Release()
		return nil, err
	}
	r, c := a.Dims()
	return backend.MeanFromSums(host.Data(), r, c, axis, noDiag)
}
