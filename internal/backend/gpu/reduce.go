package gpu

import (
	"fmt"
	"math"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// reduceVec stages a and reduces it with the per-element map and combine
// functions.
func reduceVec[T dtype.Scalar](b *Backend, op string, a container.Operand[T], mapFn func(T) T, combine func(x, y T) T) (res T, err error) {
	c, err := begin[T](b, op)
	if err != nil {
		return res, err
	}
	defer func() { c.end(err) }()
	ra, err := c.vec(a)
	if err != nil {
		return res, err
	}
	h, err := c.load(ra)
	if err != nil {
		return res, err
	}
	n := ra.len()
	return c.scalar(op, []*device.Handle{h}, func(bufs [][]byte) T {
		src := elems[T](bufs[0], n)
		part := make([]T, n)
		for i, x := range src {
			part[i] = mapFn(x)
		}
		return treeReduce(part, combine)
	})
}

func emptyErr(op string) error {
	return fmt.Errorf("gpu %s: %w: empty vector", op, errdefs.ErrDimensionMismatch)
}

func Max[T dtype.Real](b *Backend, a container.Operand[T]) (T, error) {
	m, err := reduceVec(b, "max", a, func(x T) T { return x }, func(x, y T) T { return max(x, y) })
	if err == nil && a.Len() == 0 {
		return 0, emptyErr("max")
	}
	return m, err
}

// Mean returns the arithmetic mean as float64. Integer sums accumulate in T.
func Mean[T dtype.Real](b *Backend, a container.Operand[T]) (float64, error) {
	sum, err := For[T](b).Sum(a)
	if err != nil {
		return 0, err
	}
	if a.Len() == 0 {
		return 0, emptyErr("mean")
	}
	return float64(sum) / float64(a.Len()), nil
}

// Norm returns the Euclidean norm of a.
func Norm[T dtype.Float](b *Backend, a container.Operand[T]) (T, error) {
	sq, err := reduceVec(b, "norm", a, func(x T) T { return x * x }, add[T])
	if err != nil {
		return 0, err
	}
	return T(math.Sqrt(float64(sq))), nil
}

// SetConst sets every element of a device vector to value.
func SetConst[T dtype.Scalar](b *Backend, a *Vector[T], value T) (err error) {
	c, err := begin[T](b, "set_const")
	if err != nil {
		return err
	}
	defer func() { c.end(err) }()
	ra, err := c.vec(a)
	if err != nil {
		return err
	}
	h, err := c.load(ra)
	if err != nil {
		return err
	}
	return c.fill(h, ra.len(), value)
}

func lossPair[T dtype.Float](b *Backend, op string, p, q container.MatrixOperand[T], term func(x, y T) T) (res T, err error) {
	c, err := begin[T](b, op)
	if err != nil {
		return res, err
	}
	defer func() { c.end(err) }()
	rp, rq, err := c.matPair(p, q)
	if err != nil {
		return res, err
	}
	hp, hq, err := c.loadPair(rp, rq)
	if err != nil {
		return res, err
	}
	n := rp.len()
	return c.scalar(op, []*device.Handle{hp, hq}, func(bufs [][]byte) T {
		x, y := elems[T](bufs[0], n), elems[T](bufs[1], n)
		part := make([]T, n)
		for i := range part {
			part[i] = term(x[i], y[i])
		}
		return treeReduce(part, add[T])
	})
}

// CrossEntropy returns -sum(p[i]*log(q[i])).
func CrossEntropy[T dtype.Float](b *Backend, p, q container.MatrixOperand[T]) (T, error) {
	s, err := lossPair(b, "cross_entropy", p, q, func(x, y T) T { return x * T(math.Log(float64(y))) })
	return -s, err
}

// SquaredError returns 0.5*sum((p[i]-q[i])^2).
func SquaredError[T dtype.Float](b *Backend, p, q container.MatrixOperand[T]) (T, error) {
	s, err := lossPair(b, "squared_error", p, q, func(x, y T) T {
		d := x - y
		return d * d
	})
	return s / 2, err
}
