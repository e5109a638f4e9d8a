package linalg

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// Dispatch runs op over operands, choosing the typed implementation from the
// element type of the first operand. It is the name-based counterpart of the
// typed functions in this package. Operands follow the typed signatures:
//
//	OpDot            a, b                    -> T
//	OpSum            a [, noDiag bool]       -> T (vector, matrix or Block)
//	OpSumAxis        m, backend.Axis [, noDiag bool] (matrix or Block)
//	OpSumSymmetric   m [, noDiag bool]       -> T (matrix or Block)
//	OpTrace          m                       -> T
//	OpScale          a, alpha                -> vector or matrix
//	OpScaleInPlace   a, alpha
//	OpAdd            a, b, alpha, beta       -> vector or matrix
//	OpAddInPlace     a, b, alpha, beta, result
//	OpElementwise    a, b, backend.BinaryOp[T]
//	OpMax OpMean OpNorm OpLogistic OpExponent  a (Max and Mean also take a matrix)
//	OpMeanAxis       m, backend.Axis [, noDiag bool] -> *container.Vector[float64]
//	OpSetConst       a, value
//	OpRangeFill      a, start
//	OpElementProd    a, b
//	OpMatrixProd     a, b [, transA, transB bool]
//	OpIdentity       m
//	OpCholesky       m [, lower bool]        (lower defaults to true)
//	OpCholeskySolve  factor, rhs [, lower bool]
//	OpEigenSymmetric m                       -> Eigen[T]
//	OpCrossEntropy OpSquaredError  p, q      -> T
//
// Scalar arguments must have the element type. Every call opens a span on the
// dispatcher's tracer. ctx bounds only the wait for a device slot; a running
// operation is not cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, op backend.Op, operands ...any) (any, error) {
	ctx, span := d.tracer.Start(ctx, "linalg."+op.String(), trace.WithAttributes(attribute.String("linalg.op", op.String())))
	defer span.End()

	res, err := d.dispatch(ctx, op, operands)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errdefs.Kind(err))
		d.logger.Debug().Err(err).Stringer("op", op).Msg("Dispatch failed")
	}
	return res, err
}

type typed interface {
	DType() dtype.DType
}

func (d *Dispatcher) dispatch(ctx context.Context, op backend.Op, operands []any) (any, error) {
	l := args{op: op, v: operands}
	if len(operands) == 0 {
		return nil, l.bad("no operands")
	}
	t, ok := operands[0].(typed)
	if !ok {
		return nil, l.bad("operand 0 is %T, not a container", operands[0])
	}
	dt := t.DType()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("linalg.dtype", dt.String()))
	switch dt {
	case dtype.Float32:
		return dispatchFloat[float32](ctx, d, l)
	case dtype.Float64:
		return dispatchFloat[float64](ctx, d, l)
	case dtype.Int8:
		return dispatchReal[int8](ctx, d, l)
	case dtype.Uint8:
		return dispatchReal[uint8](ctx, d, l)
	case dtype.Int16:
		return dispatchReal[int16](ctx, d, l)
	case dtype.Uint16:
		return dispatchReal[uint16](ctx, d, l)
	case dtype.Int32:
		return dispatchReal[int32](ctx, d, l)
	case dtype.Uint32:
		return dispatchReal[uint32](ctx, d, l)
	case dtype.Int64:
		return dispatchReal[int64](ctx, d, l)
	case dtype.Uint64:
		return dispatchReal[uint64](ctx, d, l)
	case dtype.Complex64:
		return dispatchComplex[complex64](ctx, d, l)
	case dtype.Complex128:
		return dispatchComplex[complex128](ctx, d, l)
	}
	return nil, fmt.Errorf("%s: %w: %s", op, errdefs.ErrUnsupportedType, dt)
}

type args struct {
	op backend.Op
	v  []any
}

func (l args) bad(format string, a ...any) error {
	return fmt.Errorf("%s: %w: %s", l.op, errdefs.ErrBadOperand, fmt.Sprintf(format, a...))
}

func (l args) want(n int) error {
	if len(l.v) < n {
		return l.bad("want %d operands, got %d", n, len(l.v))
	}
	return nil
}

func arg[A any](l args, i int) (A, error) {
	var zero A
	if i >= len(l.v) {
		return zero, l.bad("missing operand %d", i)
	}
	a, ok := l.v[i].(A)
	if !ok {
		return zero, l.bad("operand %d has unexpected type %T", i, l.v[i])
	}
	return a, nil
}

func optArg[A any](l args, i int, def A) (A, error) {
	if i >= len(l.v) {
		return def, nil
	}
	return arg[A](l, i)
}

func isMatrix(o any) bool {
	_, ok := o.(interface{ Dims() (int, int) })
	return ok
}

func dispatchFloat[T dtype.Float](ctx context.Context, d *Dispatcher, l args) (any, error) {
	switch l.op {
	case backend.OpNorm:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return Norm(ctx, d, a)
	case backend.OpLogistic, backend.OpExponent:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpLogistic {
			return Logistic(ctx, d, a)
		}
		return Exponent(ctx, d, a)
	case backend.OpCholesky:
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		lower, err := optArg(l, 1, true)
		if err != nil {
			return nil, err
		}
		return CholeskyFactor(ctx, d, m, lower)
	case backend.OpCholeskySolve:
		f, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		rhs, err := arg[container.Operand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		lower, err := optArg(l, 2, true)
		if err != nil {
			return nil, err
		}
		return CholeskySolve(ctx, d, f, rhs, lower)
	case backend.OpEigenSymmetric:
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return EigenSymmetric(ctx, d, m)
	case backend.OpCrossEntropy, backend.OpSquaredError:
		p, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		q, err := arg[container.MatrixOperand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpCrossEntropy {
			return CrossEntropy(ctx, d, p, q)
		}
		return SquaredError(ctx, d, p, q)
	}
	return dispatchReal[T](ctx, d, l)
}

func dispatchComplex[T dtype.Complex](ctx context.Context, d *Dispatcher, l args) (any, error) {
	if l.op == backend.OpMean {
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return ComplexMean(ctx, d, a)
	}
	return dispatchScalar[T](ctx, d, l)
}

func dispatchReal[T dtype.Real](ctx context.Context, d *Dispatcher, l args) (any, error) {
	switch l.op {
	case backend.OpMax, backend.OpMean:
		if isMatrix(l.v[0]) {
			m, err := arg[container.MatrixOperand[T]](l, 0)
			if err != nil {
				return nil, err
			}
			if l.op == backend.OpMax {
				return MatrixMax(ctx, d, m)
			}
			return MatrixMean(ctx, d, m)
		}
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpMax {
			return Max(ctx, d, a)
		}
		return Mean(ctx, d, a)
	case backend.OpMeanAxis:
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		axis, err := arg[backend.Axis](l, 1)
		if err != nil {
			return nil, err
		}
		noDiag, err := optArg(l, 2, false)
		if err != nil {
			return nil, err
		}
		return MeanAxis(ctx, d, m, axis, noDiag)
	case backend.OpRangeFill:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		start, err := arg[T](l, 1)
		if err != nil {
			return nil, err
		}
		return nil, RangeFill(ctx, d, a, start)
	}
	return dispatchScalar[T](ctx, d, l)
}

func dispatchScalar[T dtype.Scalar](ctx context.Context, d *Dispatcher, l args) (any, error) {
	switch l.op {
	case backend.OpDot:
		if err := l.want(2); err != nil {
			return nil, err
		}
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[container.Operand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		return Dot(ctx, d, a, b)

	case backend.OpSum:
		if b, ok := l.v[0].(container.Block[T]); ok {
			noDiag, err := optArg(l, 1, false)
			if err != nil {
				return nil, err
			}
			return BlockSum(ctx, d, b, noDiag)
		}
		if isMatrix(l.v[0]) {
			m, err := arg[container.MatrixOperand[T]](l, 0)
			if err != nil {
				return nil, err
			}
			noDiag, err := optArg(l, 1, false)
			if err != nil {
				return nil, err
			}
			return MatrixSum(ctx, d, m, noDiag)
		}
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return Sum(ctx, d, a)

	case backend.OpSumAxis:
		axis, err := arg[backend.Axis](l, 1)
		if err != nil {
			return nil, err
		}
		noDiag, err := optArg(l, 2, false)
		if err != nil {
			return nil, err
		}
		if b, ok := l.v[0].(container.Block[T]); ok {
			return BlockSumAxis(ctx, d, b, axis, noDiag)
		}
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return SumAxis(ctx, d, m, axis, noDiag)

	case backend.OpSumSymmetric:
		noDiag, err := optArg(l, 1, false)
		if err != nil {
			return nil, err
		}
		if b, ok := l.v[0].(container.Block[T]); ok {
			return BlockSumSymmetric(ctx, d, b, noDiag)
		}
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return SumSymmetric(ctx, d, m, noDiag)

	case backend.OpTrace:
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return Trace(ctx, d, m)

	case backend.OpScale:
		alpha, err := arg[T](l, 1)
		if err != nil {
			return nil, err
		}
		if isMatrix(l.v[0]) {
			m, err := arg[container.MatrixOperand[T]](l, 0)
			if err != nil {
				return nil, err
			}
			return MatrixScale(ctx, d, m, alpha)
		}
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return Scale(ctx, d, a, alpha)

	case backend.OpScaleInPlace:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		alpha, err := arg[T](l, 1)
		if err != nil {
			return nil, err
		}
		return nil, ScaleInPlace(ctx, d, a, alpha)

	case backend.OpAdd, backend.OpAddInPlace:
		alpha, err := arg[T](l, 2)
		if err != nil {
			return nil, err
		}
		beta, err := arg[T](l, 3)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpAdd && isMatrix(l.v[0]) {
			a, err := arg[container.MatrixOperand[T]](l, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg[container.MatrixOperand[T]](l, 1)
			if err != nil {
				return nil, err
			}
			return MatrixAdd(ctx, d, a, b, alpha, beta)
		}
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[container.Operand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpAdd {
			return Add(ctx, d, a, b, alpha, beta)
		}
		result, err := arg[container.Operand[T]](l, 4)
		if err != nil {
			return nil, err
		}
		return nil, AddInPlace(ctx, d, a, b, alpha, beta, result)

	case backend.OpElementwise:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[container.Operand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		fn, err := arg[backend.BinaryOp[T]](l, 2)
		if err != nil {
			return nil, err
		}
		return Elementwise(ctx, d, a, b, fn)

	case backend.OpSetConst:
		a, err := arg[container.Operand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		v, err := arg[T](l, 1)
		if err != nil {
			return nil, err
		}
		return nil, SetConst(ctx, d, a, v)

	case backend.OpElementProd, backend.OpMatrixProd:
		a, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[container.MatrixOperand[T]](l, 1)
		if err != nil {
			return nil, err
		}
		if l.op == backend.OpElementProd {
			return ElementProd(ctx, d, a, b)
		}
		transA, err := optArg(l, 2, false)
		if err != nil {
			return nil, err
		}
		transB, err := optArg(l, 3, false)
		if err != nil {
			return nil, err
		}
		return MatrixProd(ctx, d, a, b, transA, transB)

	case backend.OpIdentity:
		m, err := arg[container.MatrixOperand[T]](l, 0)
		if err != nil {
			return nil, err
		}
		return nil, Identity(ctx, d, m)
	}
	return nil, fmt.Errorf("%s: %w: not defined for %s", l.op, errdefs.ErrUnsupportedType, dtype.Of[T]())
}
