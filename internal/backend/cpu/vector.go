package cpu

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/simd"
)

// Dot returns sum(a[i]*b[i]), accumulated left to right. For complex types the
// first operand is conjugated.
func (k Kernels[T]) Dot(a, b container.Operand[T]) (T, error) {
	var zero T
	va, vb, err := hostPair("dot", a, b)
	if err != nil {
		return zero, err
	}
	switch x := any(va.Data()).(type) {
	case []complex64:
		return any(conjDot64(x, any(vb.Data()).([]complex64))).(T), nil
	case []complex128:
		return any(conjDot128(x, any(vb.Data()).([]complex128))).(T), nil
	}
	return simd.DotProduct(va.Data(), vb.Data()), nil
}

func conjDot64(a, b []complex64) complex64 {
	var sum complex64
	for i := range a {
		sum += complex(real(a[i]), -imag(a[i])) * b[i]
	}
	return sum
}

func conjDot128(a, b []complex128) complex128 {
	var sum complex128
	for i := range a {
		sum += cmplx.Conj(a[i]) * b[i]
	}
	return sum
}

func (k Kernels[T]) Sum(a container.Operand[T]) (T, error) {
	var zero T
	v, err := hostVec("sum", a)
	if err != nil {
		return zero, err
	}
	return simd.Sum(v.Data()), nil
}

// Scale returns a new vector alpha*a.
func (k Kernels[T]) Scale(a container.Operand[T], alpha T) (*container.Vector[T], error) {
	v, err := hostVec("scale", a)
	if err != nil {
		return nil, err
	}
	out, err := container.NewVector[T](v.Len())
	if err != nil {
		return nil, fmt.Errorf("cpu scale: %w", err)
	}
	src, dst := v.Data(), out.Data()
	k.b.parallelFor(len(dst), func(s, e int) {
		simd.VecScale(dst[s:e], src[s:e], alpha)
	})
	return out, nil
}

// ScaleInPlace multiplies every element of a by alpha.
func (k Kernels[T]) ScaleInPlace(a *container.Vector[T], alpha T) error {
	v, err := hostVec[T]("scale_inplace", a)
	if err != nil {
		return err
	}
	data := v.Data()
	k.b.parallelFor(len(data), func(s, e int) {
		simd.VecScale(data[s:e], data[s:e], alpha)
	})
	return nil
}

// Add returns a new vector alpha*a + beta*b.
func (k Kernels[T]) Add(a, b container.Operand[T], alpha, beta T) (*container.Vector[T], error) {
	va, vb, err := hostPair("add", a, b)
	if err != nil {
		return nil, err
	}
	out, err := container.NewVector[T](va.Len())
	if err != nil {
		return nil, fmt.Errorf("cpu add: %w", err)
	}
	k.axpby(out.Data(), va.Data(), vb.Data(), alpha, beta)
	return out, nil
}

// AddInPlace writes alpha*a + beta*b into result, which may alias a or b.
func (k Kernels[T]) AddInPlace(a, b container.Operand[T], alpha, beta T, result *container.Vector[T]) error {
	va, vb, err := hostPair("add_inplace", a, b)
	if err != nil {
		return err
	}
	r, err := hostVec[T]("add_inplace", result)
	if err != nil {
		return err
	}
	if r.Len() != va.Len() {
		return errdefs.Dimension("cpu add_inplace", va.Len(), r.Len())
	}
	dst, x, y := r.Data(), va.Data(), vb.Data()
	if alpha == 1 && len(dst) > 0 && &dst[0] == &x[0] {
		// result += beta*b
		k.b.parallelFor(len(dst), func(s, e int) {
			simd.VecAddScaled(dst[s:e], y[s:e], beta)
		})
		return nil
	}
	k.axpby(dst, x, y, alpha, beta)
	return nil
}

func (k Kernels[T]) axpby(dst, a, b []T, alpha, beta T) {
	k.b.parallelFor(len(dst), func(s, e int) {
		simd.Axpby(dst[s:e], a[s:e], b[s:e], alpha, beta)
	})
}

// Elementwise returns op(a[i], b[i]) for every i.
func (k Kernels[T]) Elementwise(a, b container.Operand[T], op backend.BinaryOp[T]) (*container.Vector[T], error) {
	if op.Fn == nil {
		return nil, fmt.Errorf("cpu elementwise %q: %w: no host function", op.Name, errdefs.ErrUnsupportedOp)
	}
	va, vb, err := hostPair("elementwise", a, b)
	if err != nil {
		return nil, err
	}
	out, err := container.NewVector[T](va.Len())
	if err != nil {
		return nil, fmt.Errorf("cpu elementwise: %w", err)
	}
	x, y, dst := va.Data(), vb.Data(), out.Data()
	k.b.parallelFor(len(dst), func(s, e int) {
		simd.Map2(dst[s:e], x[s:e], y[s:e], op.Fn)
	})
	return out, nil
}

// The operations below are restricted to a subset of scalar types, so they
// are package functions rather than Kernels methods.

// Max returns the largest element of a.
func Max[T dtype.Real](b *Backend, a container.Operand[T]) (T, error) {
	var zero T
	v, err := hostVec("max", a)
	if err != nil {
		return zero, err
	}
	data := v.Data()
	if len(data) == 0 {
		return zero, fmt.Errorf("cpu max: %w: empty vector", errdefs.ErrDimensionMismatch)
	}
	m := data[0]
	for _, x := range data[1:] {
		if x > m {
			m = x
		}
	}
	return m, nil
}

// Mean returns the arithmetic mean of a as float64. The sum accumulates in T,
// so integer vectors wrap exactly as the device kernel does.
func Mean[T dtype.Real](b *Backend, a container.Operand[T]) (float64, error) {
	v, err := hostVec("mean", a)
	if err != nil {
		return 0, err
	}
	data := v.Data()
	if len(data) == 0 {
		return 0, fmt.Errorf("cpu mean: %w: empty vector", errdefs.ErrDimensionMismatch)
	}
	var sum T
	for _, x := range data {
		sum += x
	}
	return float64(sum) / float64(len(data)), nil
}

// ComplexMean returns the mean of a complex vector.
func ComplexMean[T dtype.Complex](b *Backend, a container.Operand[T]) (T, error) {
	v, err := hostVec("mean", a)
	if err != nil {
		return 0, err
	}
	data := v.Data()
	if len(data) == 0 {
		return 0, fmt.Errorf("cpu mean: %w: empty vector", errdefs.ErrDimensionMismatch)
	}
	return simd.Sum(data) / T(complex(float64(len(data)), 0)), nil
}

// Norm returns the Euclidean norm of a.
func Norm[T dtype.Float](b *Backend, a container.Operand[T]) (T, error) {
	d, err := For[T](b).Dot(a, a)
	if err != nil {
		return 0, err
	}
	return T(math.Sqrt(float64(d))), nil
}

// SetConst sets every element of a to value.
func SetConst[T dtype.Scalar](b *Backend, a *container.Vector[T], value T) error {
	v, err := hostVec[T]("set_const", a)
	if err != nil {
		return err
	}
	data := v.Data()
	b.parallelFor(len(data), func(s, e int) {
		for i := s; i < e; i++ {
			data[i] = value
		}
	})
	return nil
}

// RangeFill sets a[i] = start + i.
func RangeFill[T dtype.Real](b *Backend, a *container.Vector[T], start T) error {
	v, err := hostVec[T]("range_fill", a)
	if err != nil {
		return err
	}
	data := v.Data()
	for i := range data {
		data[i] = start + T(i)
	}
	return nil
}

// Logistic returns 1/(1+exp(-a[i])).
func Logistic[T dtype.Float](b *Backend, a container.Operand[T]) (*container.Vector[T], error) {
	return mapUnary(b, "logistic", a, func(x T) T {
		return T(1 / (1 + math.Exp(-float64(x))))
	})
}

// Exponent returns exp(a[i]).
func Exponent[T dtype.Float](b *Backend, a container.Operand[T]) (*container.Vector[T], error) {
	return mapUnary(b, "exponent", a, func(x T) T {
		return T(math.Exp(float64(x)))
	})
}

// ComplexExponent returns exp(a[i]) for complex vectors.
func ComplexExponent(b *Backend, a container.Operand[complex128]) (*container.Vector[complex128], error) {
	return mapUnary(b, "exponent", a, cmplx.Exp)
}

func mapUnary[T dtype.Scalar](b *Backend, op string, a container.Operand[T], fn func(T) T) (*container.Vector[T], error) {
	v, err := hostVec(op, a)
	if err != nil {
		return nil, err
	}
	out, err := container.NewVector[T](v.Len())
	if err != nil {
		return nil, fmt.Errorf("cpu %s: %w", op, err)
	}
	src, dst := v.Data(), out.Data()
	b.parallelFor(len(dst), func(s, e int) {
		for i := s; i < e; i++ {
			dst[i] = fn(src[i])
		}
	})
	return out, nil
}
