package cpu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// symmetric copies a square matrix into a gonum SymDense. Only the upper
// triangle is read by the factorisations.
func symmetric[T dtype.Float](op string, a container.MatrixOperand[T]) (*mat.SymDense, error) {
	m, err := hostMat(op, a)
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	if r != c {
		return nil, errdefs.Shape("cpu "+op, r, c, c, c)
	}
	sym := mat.NewSymDense(r, nil)
	for j := 0; j < c; j++ {
		for i := 0; i <= j; i++ {
			sym.SetSym(i, j, float64(m.At(i, j)))
		}
	}
	return sym, nil
}

// CholeskyFactor returns the lower factor L with A = L*L^T, or the upper
// factor U with A = U^T*U when lower is false.
func CholeskyFactor[T dtype.Float](b *Backend, a container.MatrixOperand[T], lower bool) (*container.Matrix[T], error) {
	sym, err := symmetric("cholesky", a)
	if err != nil {
		return nil, err
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(sym); !ok {
		return nil, fmt.Errorf("cpu cholesky: %w: matrix is not positive definite", errdefs.ErrNumerical)
	}
	var tri mat.TriDense
	if lower {
		ch.LTo(&tri)
	} else {
		ch.UTo(&tri)
	}
	n := sym.SymmetricDim()
	out, err := container.NewMatrix[T](n, n)
	if err != nil {
		return nil, fmt.Errorf("cpu cholesky: %w", err)
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			out.Set(i, j, T(tri.At(i, j)))
		}
	}
	return out, nil
}

// CholeskySolve solves A*x = rhs given the factor produced by CholeskyFactor.
func CholeskySolve[T dtype.Float](b *Backend, factor container.MatrixOperand[T], rhs container.Operand[T], lower bool) (*container.Vector[T], error) {
	f, err := hostMat("cholesky_solve", factor)
	if err != nil {
		return nil, err
	}
	v, err := hostVec("cholesky_solve", rhs)
	if err != nil {
		return nil, err
	}
	n, c := f.Dims()
	if n != c {
		return nil, errdefs.Shape("cpu cholesky_solve", n, c, c, c)
	}
	if v.Len() != n {
		return nil, errdefs.Dimension("cpu cholesky_solve", n, v.Len())
	}

	// The column-major factor read row-major is its transpose.
	raw := make([]float64, n*n)
	for i, x := range f.Data() {
		raw[i] = float64(x)
	}
	uplo := blas.Upper
	first, second := blas.Trans, blas.NoTrans
	if !lower {
		uplo = blas.Lower
		first, second = blas.NoTrans, blas.Trans
	}
	tri := blas64.Triangular{Uplo: uplo, Diag: blas.NonUnit, N: n, Stride: n, Data: raw}

	x := make([]float64, n)
	for i, y := range v.Data() {
		x[i] = float64(y)
	}
	xv := blas64.Vector{N: n, Inc: 1, Data: x}
	blas64.Trsv(first, tri, xv)
	blas64.Trsv(second, tri, xv)

	out, err := container.NewVector[T](n)
	if err != nil {
		return nil, fmt.Errorf("cpu cholesky_solve: %w", err)
	}
	for i, y := range x {
		out.Set(i, T(y))
	}
	return out, nil
}

// EigenSymmetric returns the eigenvalues of a symmetric matrix in ascending
// order together with the matching eigenvectors as columns.
func EigenSymmetric[T dtype.Float](b *Backend, a container.MatrixOperand[T]) (*container.Vector[T], *container.Matrix[T], error) {
	sym, err := symmetric("eigen_symmetric", a)
	if err != nil {
		return nil, nil, err
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, fmt.Errorf("cpu eigen_symmetric: %w: decomposition did not converge", errdefs.ErrNumerical)
	}
	n := sym.SymmetricDim()
	values, err := container.NewVector[T](n)
	if err != nil {
		return nil, nil, fmt.Errorf("cpu eigen_symmetric: %w", err)
	}
	for i, x := range es.Values(nil) {
		values.Set(i, T(x))
	}
	var ev mat.Dense
	es.VectorsTo(&ev)
	vectors, err := container.NewMatrix[T](n, n)
	if err != nil {
		return nil, nil, fmt.Errorf("cpu eigen_symmetric: %w", err)
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			vectors.Set(i, j, T(ev.At(i, j)))
		}
	}
	return values, vectors, nil
}

// CrossEntropy returns -sum(p[i]*log(q[i])).
func CrossEntropy[T dtype.Float](b *Backend, p, q container.MatrixOperand[T]) (T, error) {
	mp, mq, err := hostMatPair("cross_entropy", p, q)
	if err != nil {
		return 0, err
	}
	x, y := mp.Data(), mq.Data()
	var sum float64
	for i := range x {
		sum += float64(x[i]) * math.Log(float64(y[i]))
	}
	return T(-sum), nil
}

// SquaredError returns 0.5*sum((p[i]-q[i])^2).
func SquaredError[T dtype.Float](b *Backend, p, q container.MatrixOperand[T]) (T, error) {
	mp, mq, err := hostMatPair("squared_error", p, q)
	if err != nil {
		return 0, err
	}
	x, y := mp.Data(), mq.Data()
	var sum T
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum / 2, nil
}
