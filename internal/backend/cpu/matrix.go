package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/simd"
)

// MatrixSum adds every element of a, skipping the main diagonal when noDiag
// is set.
func (k Kernels[T]) MatrixSum(a container.MatrixOperand[T], noDiag bool) (T, error) {
	var zero T
	m, err := hostMat("sum", a)
	if err != nil {
		return zero, err
	}
	sum := simd.Sum(m.Data())
	if noDiag {
		r, c := m.Dims()
		for i := 0; i < min(r, c); i++ {
			sum -= m.At(i, i)
		}
	}
	return sum, nil
}

// SumAxis reduces a along axis. Cols yields one value per column, Rows one
// value per row.
func (k Kernels[T]) SumAxis(a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (*container.Vector[T], error) {
	m, err := hostMat("sum_axis", a)
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	data := m.Data()
	switch axis {
	case backend.Cols:
		out, err := container.NewVector[T](c)
		if err != nil {
			return nil, fmt.Errorf("cpu sum_axis: %w", err)
		}
		for j := 0; j < c; j++ {
			s := simd.Sum(data[j*r : (j+1)*r])
			if noDiag && j < r {
				s -= data[j*r+j]
			}
			out.Set(j, s)
		}
		return out, nil
	case backend.Rows:
		out, err := container.NewVector[T](r)
		if err != nil {
			return nil, fmt.Errorf("cpu sum_axis: %w", err)
		}
		acc := out.Data()
		for j := 0; j < c; j++ {
			simd.VecAdd(acc, data[j*r:(j+1)*r])
		}
		if noDiag {
			for i := 0; i < min(r, c); i++ {
				acc[i] -= data[i*r+i]
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cpu sum_axis: %w: axis %d", errdefs.ErrUnsupportedOp, axis)
}

func (k Kernels[T]) MatrixScale(a container.MatrixOperand[T], alpha T) (*container.Matrix[T], error) {
	m, err := hostMat("scale", a)
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	out, err := container.NewMatrix[T](r, c)
	if err != nil {
		return nil, fmt.Errorf("cpu scale: %w", err)
	}
	src, dst := m.Data(), out.Data()
	k.b.parallelFor(len(dst), func(s, e int) {
		simd.VecScale(dst[s:e], src[s:e], alpha)
	})
	return out, nil
}

func (k Kernels[T]) MatrixAdd(a, b container.MatrixOperand[T], alpha, beta T) (*container.Matrix[T], error) {
	ma, mb, err := hostMatPair("add", a, b)
	if err != nil {
		return nil, err
	}
	r, c := ma.Dims()
	out, err := container.NewMatrix[T](r, c)
	if err != nil {
		return nil, fmt.Errorf("cpu add: %w", err)
	}
	k.axpby(out.Data(), ma.Data(), mb.Data(), alpha, beta)
	return out, nil
}

// ElementProd returns the Hadamard product of a and b.
func (k Kernels[T]) ElementProd(a, b container.MatrixOperand[T]) (*container.Matrix[T], error) {
	ma, mb, err := hostMatPair("element_prod", a, b)
	if err != nil {
		return nil, err
	}
	r, c := ma.Dims()
	out, err := container.NewMatrix[T](r, c)
	if err != nil {
		return nil, fmt.Errorf("cpu element_prod: %w", err)
	}
	x, y, dst := ma.Data(), mb.Data(), out.Data()
	k.b.parallelFor(len(dst), func(s, e int) {
		for i := s; i < e; i++ {
			dst[i] = x[i] * y[i]
		}
	})
	return out, nil
}

// MatrixProd returns op(a)*op(b), where op transposes when the matching flag
// is set. float32 and float64 go through BLAS gemm.
func (k Kernels[T]) MatrixProd(a, b container.MatrixOperand[T], transA, transB bool) (*container.Matrix[T], error) {
	ma, err := hostMat("matrix_prod", a)
	if err != nil {
		return nil, err
	}
	mb, err := hostMat("matrix_prod", b)
	if err != nil {
		return nil, err
	}
	ar, ac := opDims(ma, transA)
	br, bc := opDims(mb, transB)
	if ac != br {
		return nil, errdefs.Shape("cpu matrix_prod", ar, ac, br, bc)
	}
	out, err := container.NewMatrix[T](ar, bc)
	if err != nil {
		return nil, fmt.Errorf("cpu matrix_prod: %w", err)
	}

	switch dst := any(out.Data()).(type) {
	case []float64:
		gemm64(dst, any(ma).(*container.Matrix[float64]), any(mb).(*container.Matrix[float64]), transA, transB)
	case []float32:
		gemm32(dst, any(ma).(*container.Matrix[float32]), any(mb).(*container.Matrix[float32]), transA, transB)
	default:
		switch {
		case transA && bc == 1:
			// The rows of a^T are a's columns, so a's buffer is op(a) row-major.
			simd.MatVecMul(out.Data(), ma.Data(), mb.Data(), ar, ac)
		case ar == 1 && !transB:
			// out^T = b^T a^T, with b's buffer being b^T row-major.
			simd.MatVecMul(out.Data(), mb.Data(), ma.Data(), bc, br)
		default:
			naiveGemm(out, ma, mb, transA, transB, ac)
		}
	}
	return out, nil
}

func opDims[T dtype.Scalar](m *container.Matrix[T], trans bool) (int, int) {
	r, c := m.Dims()
	if trans {
		return c, r
	}
	return r, c
}

func transFlag(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// A column-major r x c buffer is the row-major c x r transpose, so
// C = op(A)op(B) is computed as C^T = op(B)^T op(A)^T on the raw buffers.
func gemm64(dst []float64, a, b *container.Matrix[float64], transA, transB bool) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	cr, _ := opDims(a, transA)
	_, cc := opDims(b, transB)
	ga := blas64.General{Rows: ac, Cols: ar, Stride: ar, Data: a.Data()}
	gb := blas64.General{Rows: bc, Cols: br, Stride: br, Data: b.Data()}
	gc := blas64.General{Rows: cc, Cols: cr, Stride: cr, Data: dst}
	blas64.Gemm(transFlag(transB), transFlag(transA), 1, gb, ga, 0, gc)
}

func gemm32(dst []float32, a, b *container.Matrix[float32], transA, transB bool) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	cr, _ := opDims(a, transA)
	_, cc := opDims(b, transB)
	ga := blas32.General{Rows: ac, Cols: ar, Stride: ar, Data: a.Data()}
	gb := blas32.General{Rows: bc, Cols: br, Stride: br, Data: b.Data()}
	gc := blas32.General{Rows: cc, Cols: cr, Stride: cr, Data: dst}
	blas32.Gemm(transFlag(transB), transFlag(transA), 1, gb, ga, 0, gc)
}

func naiveGemm[T dtype.Scalar](out, a, b *container.Matrix[T], transA, transB bool, inner int) {
	at := func(i, k int) T {
		if transA {
			return a.At(k, i)
		}
		return a.At(i, k)
	}
	bt := func(k, j int) T {
		if transB {
			return b.At(j, k)
		}
		return b.At(k, j)
	}
	r, c := out.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			var sum T
			for k := 0; k < inner; k++ {
				sum += at(i, k) * bt(k, j)
			}
			out.Set(i, j, sum)
		}
	}
}

// Identity sets m to the identity matrix.
func Identity[T dtype.Scalar](b *Backend, m *container.Matrix[T]) error {
	hm, err := hostMat[T]("identity", m)
	if err != nil {
		return err
	}
	data := hm.Data()
	for i := range data {
		data[i] = 0
	}
	r, c := hm.Dims()
	for i := 0; i < min(r, c); i++ {
		hm.Set(i, i, 1)
	}
	return nil
}

func hostMatPair[T dtype.Scalar](op string, a, b container.MatrixOperand[T]) (*container.Matrix[T], *container.Matrix[T], error) {
	ma, err := hostMat(op, a)
	if err != nil {
		return nil, nil, err
	}
	mb, err := hostMat(op, b)
	if err != nil {
		return nil, nil, err
	}
	ar, ac := ma.Dims()
	br, bc := mb.Dims()
	if ar != br || ac != bc {
		return nil, nil, errdefs.Shape("cpu "+op, ar, ac, br, bc)
	}
	return ma, mb, nil
}
