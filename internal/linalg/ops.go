package linalg

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// The typed entry points below resolve the scalar type at compile time and
// the backend from operand residency. Vector and matrix results are
// *container.Vector / *container.Matrix on the CPU and *gpu.Vector /
// *gpu.Matrix on the GPU.

func as[C any](op backend.Op, o any) (C, error) {
	c, ok := o.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("%s: %w: %T cannot be updated in place by this backend", op, errdefs.ErrMixedBackend, o)
	}
	return c, nil
}

func Dot[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.Operand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpDot,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).Dot(a, b); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).Dot(a, b); return },
		a, b)
	return res, err
}

func Sum[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpSum,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).Sum(a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).Sum(a); return },
		a)
	return res, err
}

func Scale[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.Operand[T], alpha T) (res container.Operand[T], err error) {
	err = d.run(ctx, backend.OpScale,
		func(c *cpu.Backend) error {
			v, err := cpu.For[T](c).Scale(a, alpha)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		func(g *gpu.Backend) error {
			v, err := gpu.For[T](g).Scale(a, alpha)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		a)
	return res, err
}

func ScaleInPlace[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.Operand[T], alpha T) error {
	return d.run(ctx, backend.OpScaleInPlace,
		func(c *cpu.Backend) error {
			v, err := as[*container.Vector[T]](backend.OpScaleInPlace, a)
			if err != nil {
				return err
			}
			return cpu.For[T](c).ScaleInPlace(v, alpha)
		},
		func(g *gpu.Backend) error {
			v, err := as[*gpu.Vector[T]](backend.OpScaleInPlace, a)
			if err != nil {
				return err
			}
			return gpu.For[T](g).ScaleInPlace(v, alpha)
		},
		a)
}

// Add returns alpha*a + beta*b.
func Add[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.Operand[T], alpha, beta T) (res container.Operand[T], err error) {
	err = d.run(ctx, backend.OpAdd,
		func(c *cpu.Backend) error {
			v, err := cpu.For[T](c).Add(a, b, alpha, beta)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		func(g *gpu.Backend) error {
			v, err := gpu.For[T](g).Add(a, b, alpha, beta)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		a, b)
	return res, err
}

// AddInPlace writes alpha*a + beta*b into result.
func AddInPlace[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.Operand[T], alpha, beta T, result container.Operand[T]) error {
	return d.run(ctx, backend.OpAddInPlace,
		func(c *cpu.Backend) error {
			r, err := as[*container.Vector[T]](backend.OpAddInPlace, result)
			if err != nil {
				return err
			}
			return cpu.For[T](c).AddInPlace(a, b, alpha, beta, r)
		},
		func(g *gpu.Backend) error {
			r, err := as[*gpu.Vector[T]](backend.OpAddInPlace, result)
			if err != nil {
				return err
			}
			return gpu.For[T](g).AddInPlace(a, b, alpha, beta, r)
		},
		a, b, result)
}

func Elementwise[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.Operand[T], op backend.BinaryOp[T]) (res container.Operand[T], err error) {
	err = d.run(ctx, backend.OpElementwise,
		func(c *cpu.Backend) error {
			v, err := cpu.For[T](c).Elementwise(a, b, op)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		func(g *gpu.Backend) error {
			v, err := gpu.For[T](g).Elementwise(a, b, op)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		a, b)
	return res, err
}

func Max[T dtype.Real](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpMax,
		func(c *cpu.Backend) (err error) { res, err = cpu.Max(c, a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.Max(g, a); return },
		a)
	return res, err
}

func Mean[T dtype.Real](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res float64, err error) {
	err = d.run(ctx, backend.OpMean,
		func(c *cpu.Backend) (err error) { res, err = cpu.Mean(c, a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.Mean(g, a); return },
		a)
	return res, err
}

func Norm[T dtype.Float](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpNorm,
		func(c *cpu.Backend) (err error) { res, err = cpu.Norm(c, a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.Norm(g, a); return },
		a)
	return res, err
}

func SetConst[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.Operand[T], value T) error {
	return d.run(ctx, backend.OpSetConst,
		func(c *cpu.Backend) error {
			v, err := as[*container.Vector[T]](backend.OpSetConst, a)
			if err != nil {
				return err
			}
			return cpu.SetConst(c, v, value)
		},
		func(g *gpu.Backend) error {
			v, err := as[*gpu.Vector[T]](backend.OpSetConst, a)
			if err != nil {
				return err
			}
			return gpu.SetConst(g, v, value)
		},
		a)
}

// RangeFill sets a[i] = start + i. CPU only.
func RangeFill[T dtype.Real](ctx context.Context, d *Dispatcher, a container.Operand[T], start T) error {
	return d.run(ctx, backend.OpRangeFill,
		func(c *cpu.Backend) error {
			v, err := as[*container.Vector[T]](backend.OpRangeFill, a)
			if err != nil {
				return err
			}
			return cpu.RangeFill(c, v, start)
		}, nil, a)
}

// Logistic applies 1/(1+exp(-x)) elementwise. CPU only.
func Logistic[T dtype.Float](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res *container.Vector[T], err error) {
	err = d.run(ctx, backend.OpLogistic,
		func(c *cpu.Backend) (err error) { res, err = cpu.Logistic(c, a); return },
		nil, a)
	return res, err
}

// Exponent applies exp elementwise. CPU only.
func Exponent[T dtype.Float](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res *container.Vector[T], err error) {
	err = d.run(ctx, backend.OpExponent,
		func(c *cpu.Backend) (err error) { res, err = cpu.Exponent(c, a); return },
		nil, a)
	return res, err
}

// MatrixSum adds every element of a, skipping the diagonal when noDiag is set.
func MatrixSum[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], noDiag bool) (res T, err error) {
	err = d.run(ctx, backend.OpSum,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).MatrixSum(a, noDiag); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).MatrixSum(a, noDiag); return },
		a)
	return res, err
}

func SumAxis[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (res container.Operand[T], err error) {
	err = d.run(ctx, backend.OpSumAxis,
		func(c *cpu.Backend) error {
			v, err := cpu.For[T](c).SumAxis(a, axis, noDiag)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		func(g *gpu.Backend) error {
			v, err := gpu.For[T](g).SumAxis(a, axis, noDiag)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		a)
	return res, err
}

func MatrixScale[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], alpha T) (res container.MatrixOperand[T], err error) {
	err = d.run(ctx, backend.OpScale,
		func(c *cpu.Backend) error {
			m, err := cpu.For[T](c).MatrixScale(a, alpha)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		func(g *gpu.Backend) error {
			m, err := gpu.For[T](g).MatrixScale(a, alpha)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		a)
	return res, err
}

func MatrixAdd[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.MatrixOperand[T], alpha, beta T) (res container.MatrixOperand[T], err error) {
	err = d.run(ctx, backend.OpAdd,
		func(c *cpu.Backend) error {
			m, err := cpu.For[T](c).MatrixAdd(a, b, alpha, beta)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		func(g *gpu.Backend) error {
			m, err := gpu.For[T](g).MatrixAdd(a, b, alpha, beta)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		a, b)
	return res, err
}

func ElementProd[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.MatrixOperand[T]) (res container.MatrixOperand[T], err error) {
	err = d.run(ctx, backend.OpElementProd,
		func(c *cpu.Backend) error {
			m, err := cpu.For[T](c).ElementProd(a, b)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		func(g *gpu.Backend) error {
			m, err := gpu.For[T](g).ElementProd(a, b)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		a, b)
	return res, err
}

func MatrixProd[T dtype.Scalar](ctx context.Context, d *Dispatcher, a, b container.MatrixOperand[T], transA, transB bool) (res container.MatrixOperand[T], err error) {
	err = d.run(ctx, backend.OpMatrixProd,
		func(c *cpu.Backend) error {
			m, err := cpu.For[T](c).MatrixProd(a, b, transA, transB)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		func(g *gpu.Backend) error {
			m, err := gpu.For[T](g).MatrixProd(a, b, transA, transB)
			if err != nil {
				return err
			}
			res = m
			return nil
		},
		a, b)
	return res, err
}

// Identity sets a host matrix to the identity. CPU only.
func Identity[T dtype.Scalar](ctx context.Context, d *Dispatcher, m container.MatrixOperand[T]) error {
	return d.run(ctx, backend.OpIdentity,
		func(c *cpu.Backend) error {
			hm, err := as[*container.Matrix[T]](backend.OpIdentity, m)
			if err != nil {
				return err
			}
			return cpu.Identity(c, hm)
		}, nil, m)
}

func CholeskyFactor[T dtype.Float](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], lower bool) (res *container.Matrix[T], err error) {
	err = d.run(ctx, backend.OpCholesky,
		func(c *cpu.Backend) (err error) { res, err = cpu.CholeskyFactor(c, a, lower); return },
		nil, a)
	return res, err
}

func CholeskySolve[T dtype.Float](ctx context.Context, d *Dispatcher, factor container.MatrixOperand[T], rhs container.Operand[T], lower bool) (res *container.Vector[T], err error) {
	err = d.run(ctx, backend.OpCholeskySolve,
		func(c *cpu.Backend) (err error) { res, err = cpu.CholeskySolve(c, factor, rhs, lower); return },
		nil, factor, rhs)
	return res, err
}

// Eigen holds the result of a symmetric eigendecomposition.
type Eigen[T dtype.Float] struct {
	Values  *container.Vector[T]
	Vectors *container.Matrix[T]
}

func EigenSymmetric[T dtype.Float](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T]) (res Eigen[T], err error) {
	err = d.run(ctx, backend.OpEigenSymmetric,
		func(c *cpu.Backend) (err error) {
			res.Values, res.Vectors, err = cpu.EigenSymmetric(c, a)
			return
		}, nil, a)
	return res, err
}

func CrossEntropy[T dtype.Float](ctx context.Context, d *Dispatcher, p, q container.MatrixOperand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpCrossEntropy,
		func(c *cpu.Backend) (err error) { res, err = cpu.CrossEntropy(c, p, q); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.CrossEntropy(g, p, q); return },
		p, q)
	return res, err
}

func SquaredError[T dtype.Float](ctx context.Context, d *Dispatcher, p, q container.MatrixOperand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpSquaredError,
		func(c *cpu.Backend) (err error) { res, err = cpu.SquaredError(c, p, q); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.SquaredError(g, p, q); return },
		p, q)
	return res, err
}

func Trace[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpTrace,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).Trace(a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).Trace(a); return },
		a)
	return res, err
}

// SumSymmetric sums a symmetric matrix from its upper triangle.
func SumSymmetric[T dtype.Scalar](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], noDiag bool) (res T, err error) {
	err = d.run(ctx, backend.OpSumSymmetric,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).SumSymmetric(a, noDiag); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).SumSymmetric(a, noDiag); return },
		a)
	return res, err
}

func BlockSum[T dtype.Scalar](ctx context.Context, d *Dispatcher, b container.Block[T], noDiag bool) (res T, err error) {
	err = d.run(ctx, backend.OpSum,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).BlockSum(b, noDiag); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).BlockSum(b, noDiag); return },
		b)
	return res, err
}

func BlockSumSymmetric[T dtype.Scalar](ctx context.Context, d *Dispatcher, b container.Block[T], noDiag bool) (res T, err error) {
	err = d.run(ctx, backend.OpSumSymmetric,
		func(c *cpu.Backend) (err error) { res, err = cpu.For[T](c).BlockSumSymmetric(b, noDiag); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.For[T](g).BlockSumSymmetric(b, noDiag); return },
		b)
	return res, err
}

func BlockSumAxis[T dtype.Scalar](ctx context.Context, d *Dispatcher, b container.Block[T], axis backend.Axis, noDiag bool) (res container.Operand[T], err error) {
	err = d.run(ctx, backend.OpSumAxis,
		func(c *cpu.Backend) error {
			v, err := cpu.For[T](c).BlockSumAxis(b, axis, noDiag)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		func(g *gpu.Backend) error {
			v, err := gpu.For[T](g).BlockSumAxis(b, axis, noDiag)
			if err != nil {
				return err
			}
			res = v
			return nil
		},
		b)
	return res, err
}

func MatrixMax[T dtype.Real](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpMax,
		func(c *cpu.Backend) (err error) { res, err = cpu.MatrixMax(c, a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.MatrixMax(g, a); return },
		a)
	return res, err
}

func MatrixMean[T dtype.Real](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T]) (res float64, err error) {
	err = d.run(ctx, backend.OpMean,
		func(c *cpu.Backend) (err error) { res, err = cpu.MatrixMean(c, a); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.MatrixMean(g, a); return },
		a)
	return res, err
}

// MeanAxis returns per-column (backend.Cols) or per-row (backend.Rows) means
// as a host vector on either backend.
func MeanAxis[T dtype.Real](ctx context.Context, d *Dispatcher, a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (res *container.Vector[float64], err error) {
	err = d.run(ctx, backend.OpMeanAxis,
		func(c *cpu.Backend) (err error) { res, err = cpu.MeanAxis(c, a, axis, noDiag); return },
		func(g *gpu.Backend) (err error) { res, err = gpu.MeanAxis(g, a, axis, noDiag); return },
		a)
	return res, err
}

// ComplexMean returns the mean of a complex vector. CPU only.
func ComplexMean[T dtype.Complex](ctx context.Context, d *Dispatcher, a container.Operand[T]) (res T, err error) {
	err = d.run(ctx, backend.OpMean,
		func(c *cpu.Backend) (err error) { res, err = cpu.ComplexMean(c, a); return },
		nil, a)
	return res, err
}
