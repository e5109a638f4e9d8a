package gpu

import (
	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

func (c *call[T]) matPair(a, b container.MatrixOperand[T]) (ref[T], ref[T], error) {
	ra, err := c.mat(a)
	if err != nil {
		return ref[T]{}, ref[T]{}, err
	}
	rb, err := c.mat(b)
	if err != nil {
		return ref[T]{}, ref[T]{}, err
	}
	if ra.rows != rb.rows || ra.cols != rb.cols {
		return ref[T]{}, ref[T]{}, errdefs.Shape("gpu "+c.op, ra.rows, ra.cols, rb.rows, rb.cols)
	}
	return ra, rb, nil
}

func (k Kernels[T]) MatrixSum(a container.MatrixOperand[T], noDiag bool) (T, error) {
	return k.reduceRegion("sum", "matrix_sum", a, whole, func(src []T, rg backend.Region) T {
		return treeReduce(gather(src, rg, noDiag), add[T])
	})
}

func (k Kernels[T]) SumAxis(a container.MatrixOperand[T], axis backend.Axis, noDiag bool) (*Vector[T], error) {
	return k.sumRegionAxis(a, whole, axis, noDiag)
}

func (k Kernels[T]) MatrixScale(a container.MatrixOperand[T], alpha T) (out *Matrix[T], err error) {
	c, err := begin[T](k.b, "scale")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, err := c.mat(a)
	if err != nil {
		return nil, err
	}
	h, err := c.load(ra)
	if err != nil {
		return nil, err
	}
	if out, err = c.matrix(ra.rows, ra.cols); err != nil {
		return nil, err
	}
	if err = c.launch("scale", []*device.Handle{h, out.h}, scaleBody(ra.len(), alpha)); err != nil {
		return nil, err
	}
	return out, nil
}

func (k Kernels[T]) MatrixAdd(a, b container.MatrixOperand[T], alpha, beta T) (out *Matrix[T], err error) {
	c, err := begin[T](k.b, "add")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.matPair(a, b)
	if err != nil {
		return nil, err
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return nil, err
	}
	if out, err = c.matrix(ra.rows, ra.cols); err != nil {
		return nil, err
	}
	if err = c.launch("add", []*device.Handle{ha, hb, out.h}, axpbyBody(ra.len(), alpha, beta)); err != nil {
		return nil, err
	}
	return out, nil
}

func (k Kernels[T]) ElementProd(a, b container.MatrixOperand[T]) (out *Matrix[T], err error) {
	c, err := begin[T](k.b, "element_prod")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.matPair(a, b)
	if err != nil {
		return nil, err
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return nil, err
	}
	if out, err = c.matrix(ra.rows, ra.cols); err != nil {
		return nil, err
	}
	n := ra.len()
	err = c.launch("element_prod", []*device.Handle{ha, hb, out.h}, func(bufs [][]byte) {
		x, y, dst := elems[T](bufs[0], n), elems[T](bufs[1], n), elems[T](bufs[2], n)
		for i := range dst {
			dst[i] = x[i] * y[i]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MatrixProd returns op(a)*op(b). Each output element is one work item
// accumulating its inner product in index order.
func (k Kernels[T]) MatrixProd(a, b container.MatrixOperand[T], transA, transB bool) (out *Matrix[T], err error) {
	c, err := begin[T](k.b, "matrix_prod")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, err := c.mat(a)
	if err != nil {
		return nil, err
	}
	rb, err := c.mat(b)
	if err != nil {
		return nil, err
	}
	ar, ac := ra.rows, ra.cols
	if transA {
		ar, ac = ac, ar
	}
	br, bc := rb.rows, rb.cols
	if transB {
		br, bc = bc, br
	}
	if ac != br {
		return nil, errdefs.Shape("gpu matrix_prod", ar, ac, br, bc)
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return nil, err
	}
	if out, err = c.matrix(ar, bc); err != nil {
		return nil, err
	}
	lda, ldb := ra.rows, rb.rows
	err = c.launch("gemm", []*device.Handle{ha, hb, out.h}, func(bufs [][]byte) {
		x, y := elems[T](bufs[0], ra.len()), elems[T](bufs[1], rb.len())
		dst := elems[T](bufs[2], ar*bc)
		for j := 0; j < bc; j++ {
			for i := 0; i < ar; i++ {
				var sum T
				for p := 0; p < ac; p++ {
					var av, bv T
					if transA {
						av = x[i*lda+p]
					} else {
						av = x[p*lda+i]
					}
					if transB {
						bv = y[p*ldb+j]
					} else {
						bv = y[j*ldb+p]
					}
					sum += av * bv
				}
				dst[j*ar+i] = sum
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
