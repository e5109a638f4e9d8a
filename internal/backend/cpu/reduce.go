package cpu

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/simd"
)

func hostBlock[T dtype.Scalar](op string, b container.Block[T]) (backend.Region, []T, error) {
	m, err := hostMat(op, b.Of)
	if err != nil {
		return backend.Region{}, nil, err
	}
	if err := b.Check(); err != nil {
		return backend.Region{}, nil, fmt.Errorf("cpu %s: %w", op, err)
	}
	return backend.RegionOf(b), m.Data(), nil
}

func diagSum[T dtype.Scalar](rg backend.Region, data []T) T {
	var sum T
	for i := 0; i < rg.Diag(); i++ {
		sum += data[rg.Index(i, i)]
	}
	return sum
}

// Trace sums the main diagonal. Non-square matrices use their leading
// min(rows, cols) diagonal.
func (k Kernels[T]) Trace(a container.MatrixOperand[T]) (T, error) {
	var zero T
	m, err := hostMat("trace", a)
	if err != nil {
		return zero, err
	}
	r, c := m.Dims()
	return diagSum(backend.Whole(r, c), m.Data()), nil
}

func (k Kernels[T]) BlockSum(b container.Block[T], noDiag bool) (T, error) {
	var sum T
	rg, data, err := hostBlock("sum", b)
	if err != nil {
		return sum, err
	}
	for j := 0; j < rg.Cols; j++ {
		lo, hi := rg.Column(j)
		sum += simd.Sum(data[lo:hi])
	}
	if noDiag {
		sum -= diagSum(rg, data)
	}
	return sum, nil
}

func (k Kernels[T]) SumSymmetric(a container.MatrixOperand[T], noDiag bool) (T, error) {
	var zero T
	m, err := hostMat("sum_symmetric", a)
	if err != nil {
		return zero, err
	}
	return k.BlockSumSymmetric(container.WholeBlock[T](m), noDiag)
}

// BlockSumSymmetric reads only the strict upper triangle and the diagonal of
// a square block and counts the triangle twice.
func (k Kernels[T]) BlockSumSymmetric(b container.Block[T], noDiag bool) (T, error) {
	var sum T
	rg, data, err := hostBlock("sum_symmetric", b)
	if err != nil {
		return sum, err
	}
	if rg.Rows != rg.Cols {
		return sum, fmt.Errorf("cpu sum_symmetric: %w: %dx%d is not square", errdefs.ErrDimensionMismatch, rg.Rows, rg.Cols)
	}
	for j := 1; j < rg.Cols; j++ {
		lo, _ := rg.Column(j)
		sum += simd.Sum(data[lo : lo+j])
	}
	sum += sum
	if !noDiag {
		sum += diagSum(rg, data)
	}
	return sum, nil
}

func (k Kernels[T]) BlockSumAxis(b container.Block[T], axis backend.Axis, noDiag bool) (*container.Vector[T], error) {
	rg, data, err := hostBlock("sum_axis", b)
	if err != nil {
		return nil, err
	}
	var out *container.Vector[T]
	switch axis {
	case backend.Cols:
		if out, err = container.NewVector[T](rg.Cols); err != nil {
			return nil, fmt.Errorf("cpu sum_axis: %w", err)
		}
		acc := out.Data()
		for j := range acc {
			lo, hi := rg.Column(j)
			acc[j] = simd.Sum(data[lo:hi])
		}
	case backend.Rows:
		if out, err = container.NewVector[T](rg.Rows); err != nil {
			return nil, fmt.Errorf("cpu sum_axis: %w", err)
		}
		acc := out.Data()
		for j := 0; j < rg.Cols; j++ {
			lo, hi := rg.Column(j)
			simd.VecAdd(acc, data[lo:hi])
		}
	default:
		return nil, fmt.Errorf("cpu sum_axis: %w: axis %d", errdefs.ErrUnsupportedOp, axis)
	}
	if noDiag {
		acc := out.Data()
		for i := 0; i < rg.Diag(); i++ {
			acc[i] -= data[rg.Index(i, i)]
		}
	}
	return out, nil
}

// MatrixMax returns the largest element of a.
func MatrixMax[T dtype.Real](b *Backend, a container.MatrixOperand[T]) (T, error) {
	m, err := hostMat("max", a)
	if err != nil {
		return 0, err
	}
	return Max[T](b, m.AsVector())
}

// MatrixMean returns the mean of every element of a as float64. The sum
// accumulates in T.
func MatrixMean[T dtype.Real](b *Backend, a container.MatrixOperand[T]) (float64, error) {
	m, err := hostMat("mean", a)
	if err != nil {
		return 0, err
	}
	return Mean[T](b, m.AsVector())
}

// MeanAxis returns the per-column or per-row means of a. With noDiag the
// diagonal is excluded from both the sums and the element counts.
func MeanAxis[T dtype.Real](b *Backend, a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (*container.Vector[float64], error) {
	sums, err := For[T](b).SumAxis(a, axis, noDiag)
	if err != nil {
		return nil, err
	}
	r, c := a.Dims()
	return backend.MeanFromSums(sums.Data(), r, c, axis, noDiag)
}
