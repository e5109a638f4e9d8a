package gpu

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// Kernels binds the backend to scalar type T.
type Kernels[T dtype.Scalar] struct {
	b *Backend
}

// For returns b's kernels for T. Calls fail with ErrUnsupportedType when T
// has no device kernels.
func For[T dtype.Scalar](b *Backend) Kernels[T] {
	return Kernels[T]{b: b}
}

func (k Kernels[T]) Backend() *Backend { return k.b }

func checkType[T dtype.Scalar](b *Backend, op string) error {
	if err := b.available(op); err != nil {
		return err
	}
	if d := dtype.Of[T](); !Types.Has(d) {
		return errdefs.Unsupported("gpu "+op, b.name, d)
	}
	return nil
}

// ref is an operand resolved but not yet staged.
type ref[T dtype.Scalar] struct {
	rows, cols int
	host       []T
	dev        *buffer[T]
}

func (r ref[T]) len() int { return r.rows * r.cols }

// call tracks the device memory touched by one backend call. Temporary
// handles are freed when the call ends; result containers are released too
// if the call failed, so nothing allocated by a failed call outlives it.
type call[T dtype.Scalar] struct {
	b       *Backend
	op      string
	temps   []*device.Handle
	touched []*buffer[T]
	results []*buffer[T]
}

func begin[T dtype.Scalar](b *Backend, op string) (*call[T], error) {
	if err := checkType[T](b, op); err != nil {
		return nil, err
	}
	return &call[T]{b: b, op: op}, nil
}

func (c *call[T]) end(err error) {
	for _, h := range c.temps {
		if ferr := h.Free(); ferr != nil {
			c.b.logger.Warn().Err(ferr).Str("op", c.op).Msg("Failed to free temporary device buffer")
		}
	}
	if err != nil {
		for _, r := range c.results {
			_ = r.Release()
		}
		return
	}
	for _, x := range c.touched {
		x.setState(ComputedOnDevice)
	}
	for _, r := range c.results {
		r.setState(ComputedOnDevice)
	}
}

func (c *call[T]) errorf(format string, args ...any) error {
	return fmt.Errorf("gpu "+c.op+": "+format, args...)
}

func (c *call[T]) vec(o container.Operand[T]) (ref[T], error) {
	if o == nil {
		return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
	}
	switch v := o.(type) {
	case *container.Vector[T]:
		if v == nil {
			return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
		}
		if err := v.Check(); err != nil {
			return ref[T]{}, c.errorf("%w", err)
		}
		return ref[T]{rows: v.Len(), cols: 1, host: v.Data()}, nil
	case *Vector[T]:
		if v == nil {
			return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
		}
		return c.device(&v.buffer, v.n, 1)
	}
	return ref[T]{}, c.errorf("%w: foreign operand %T", errdefs.ErrMixedBackend, o)
}

func (c *call[T]) mat(o container.MatrixOperand[T]) (ref[T], error) {
	if o == nil {
		return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
	}
	switch m := o.(type) {
	case *container.Matrix[T]:
		if m == nil {
			return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
		}
		if err := m.Check(); err != nil {
			return ref[T]{}, c.errorf("%w", err)
		}
		r, cols := m.Dims()
		return ref[T]{rows: r, cols: cols, host: m.Data()}, nil
	case *Matrix[T]:
		if m == nil {
			return ref[T]{}, c.errorf("%w: nil operand", errdefs.ErrBadOperand)
		}
		return c.device(&m.buffer, m.rows, m.cols)
	}
	return ref[T]{}, c.errorf("%w: foreign operand %T", errdefs.ErrMixedBackend, o)
}

func (c *call[T]) device(x *buffer[T], rows, cols int) (ref[T], error) {
	if x.b != c.b {
		return ref[T]{}, c.errorf("%w: operand belongs to another device backend", errdefs.ErrMixedBackend)
	}
	if x.Released() {
		return ref[T]{}, c.errorf("%w", errdefs.ErrReleased)
	}
	return ref[T]{rows: rows, cols: cols, dev: x}, nil
}

// load returns the device handle of r. Host operands get a temporary copy
// for the duration of the call; device containers stage their pending data
// into their own handle.
func (c *call[T]) load(r ref[T]) (*device.Handle, error) {
	if r.dev != nil {
		h, err := r.dev.handle(c.op)
		if err != nil {
			return nil, err
		}
		c.touched = append(c.touched, r.dev)
		return h, nil
	}
	h, err := c.alloc(r.len())
	if err != nil {
		return nil, err
	}
	if err := c.b.upload(h, bytesOf(r.host)); err != nil {
		return nil, c.errorf("stage: %w", err)
	}
	return h, nil
}

func (c *call[T]) loadPair(a, b ref[T]) (*device.Handle, *device.Handle, error) {
	ha, err := c.load(a)
	if err != nil {
		return nil, nil, err
	}
	hb, err := c.load(b)
	if err != nil {
		return nil, nil, err
	}
	return ha, hb, nil
}

func (c *call[T]) alloc(n int) (*device.Handle, error) {
	h, err := allocElems[T](c.b.driver, n)
	if err != nil {
		return nil, c.errorf("%w", err)
	}
	c.temps = append(c.temps, h)
	return h, nil
}

func (c *call[T]) result(n int) (*buffer[T], error) {
	h, err := allocElems[T](c.b.driver, n)
	if err != nil {
		return nil, c.errorf("%w", err)
	}
	x := &buffer[T]{b: c.b, n: n, h: h}
	c.results = append(c.results, x)
	return x, nil
}

func (c *call[T]) vector(n int) (*Vector[T], error) {
	x, err := c.result(n)
	if err != nil {
		return nil, err
	}
	v := &Vector[T]{}
	v.b, v.n, v.h = x.b, x.n, x.h
	c.results[len(c.results)-1] = &v.buffer
	return v, nil
}

func (c *call[T]) matrix(rows, cols int) (*Matrix[T], error) {
	x, err := c.result(rows * cols)
	if err != nil {
		return nil, err
	}
	m := &Matrix[T]{rows: rows, cols: cols}
	m.b, m.n, m.h = x.b, x.n, x.h
	c.results[len(c.results)-1] = &m.buffer
	return m, nil
}

func (c *call[T]) launch(name string, args []*device.Handle, run func(bufs [][]byte)) error {
	if err := c.b.launch(name, args, run); err != nil {
		return c.errorf("%w", err)
	}
	return nil
}

// scalar runs a reduction kernel whose body writes one value, and reads it
// back.
func (c *call[T]) scalar(name string, args []*device.Handle, body func(bufs [][]byte) T) (T, error) {
	var out [1]T
	h, err := c.alloc(1)
	if err != nil {
		return out[0], err
	}
	args = append(args, h)
	err = c.launch(name, args, func(bufs [][]byte) {
		elems[T](bufs[len(bufs)-1], 1)[0] = body(bufs)
	})
	if err != nil {
		return out[0], err
	}
	if err := c.b.download(h, bytesOf(out[:])); err != nil {
		return out[0], c.errorf("%w", err)
	}
	return out[0], nil
}

func (c *call[T]) fill(h *device.Handle, n int, value T) error {
	return c.launch("fill", []*device.Handle{h}, func(bufs [][]byte) {
		dst := elems[T](bufs[0], n)
		for i := range dst {
			dst[i] = value
		}
	})
}

// pair resolves two same-length vector operands.
func (c *call[T]) pair(a, b container.Operand[T]) (ref[T], ref[T], error) {
	ra, err := c.vec(a)
	if err != nil {
		return ref[T]{}, ref[T]{}, err
	}
	rb, err := c.vec(b)
	if err != nil {
		return ref[T]{}, ref[T]{}, err
	}
	if ra.len() != rb.len() {
		return ref[T]{}, ref[T]{}, errdefs.Dimension("gpu "+c.op, ra.len(), rb.len())
	}
	return ra, rb, nil
}

func (k Kernels[T]) Dot(a, b container.Operand[T]) (res T, err error) {
	c, err := begin[T](k.b, "dot")
	if err != nil {
		return res, err
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.pair(a, b)
	if err != nil {
		return res, err
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return res, err
	}
	n := ra.len()
	return c.scalar("dot", []*device.Handle{ha, hb}, func(bufs [][]byte) T {
		x, y := elems[T](bufs[0], n), elems[T](bufs[1], n)
		part := make([]T, n)
		for i := range part {
			part[i] = x[i] * y[i]
		}
		return treeReduce(part, add[T])
	})
}

func (k Kernels[T]) Sum(a container.Operand[T]) (res T, err error) {
	c, err := begin[T](k.b, "sum")
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
	return c.scalar("sum", []*device.Handle{h}, func(bufs [][]byte) T {
		part := make([]T, n)
		copy(part, elems[T](bufs[0], n))
		return treeReduce(part, add[T])
	})
}

func (k Kernels[T]) Scale(a container.Operand[T], alpha T) (out *Vector[T], err error) {
	c, err := begin[T](k.b, "scale")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, err := c.vec(a)
	if err != nil {
		return nil, err
	}
	h, err := c.load(ra)
	if err != nil {
		return nil, err
	}
	n := ra.len()
	if out, err = c.vector(n); err != nil {
		return nil, err
	}
	if err = c.launch("scale", []*device.Handle{h, out.h}, scaleBody(n, alpha)); err != nil {
		return nil, err
	}
	return out, nil
}

func (k Kernels[T]) ScaleInPlace(a *Vector[T], alpha T) (err error) {
	c, err := begin[T](k.b, "scale_inplace")
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
	n := ra.len()
	return c.launch("scale_inplace", []*device.Handle{h}, func(bufs [][]byte) {
		x := elems[T](bufs[0], n)
		for i := range x {
			x[i] *= alpha
		}
	})
}

func scaleBody[T dtype.Scalar](n int, alpha T) func([][]byte) {
	return func(bufs [][]byte) {
		x, dst := elems[T](bufs[0], n), elems[T](bufs[1], n)
		for i := range dst {
			dst[i] = alpha * x[i]
		}
	}
}

func axpbyBody[T dtype.Scalar](n int, alpha, beta T) func([][]byte) {
	return func(bufs [][]byte) {
		x, y, dst := elems[T](bufs[0], n), elems[T](bufs[1], n), elems[T](bufs[2], n)
		for i := range dst {
			dst[i] = alpha*x[i] + beta*y[i]
		}
	}
}

func (k Kernels[T]) Add(a, b container.Operand[T], alpha, beta T) (out *Vector[T], err error) {
	c, err := begin[T](k.b, "add")
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.pair(a, b)
	if err != nil {
		return nil, err
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return nil, err
	}
	if out, err = c.vector(ra.len()); err != nil {
		return nil, err
	}
	if err = c.launch("add", []*device.Handle{ha, hb, out.h}, axpbyBody(ra.len(), alpha, beta)); err != nil {
		return nil, err
	}
	return out, nil
}

// AddInPlace writes alpha*a + beta*b into result, which may alias a or b.
func (k Kernels[T]) AddInPlace(a, b container.Operand[T], alpha, beta T, result *Vector[T]) (err error) {
	c, err := begin[T](k.b, "add_inplace")
	if err != nil {
		return err
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.pair(a, b)
	if err != nil {
		return err
	}
	rr, err := c.vec(result)
	if err != nil {
		return err
	}
	if rr.len() != ra.len() {
		return errdefs.Dimension("gpu add_inplace", ra.len(), rr.len())
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return err
	}
	hr, err := c.load(rr)
	if err != nil {
		return err
	}
	return c.launch("add", []*device.Handle{ha, hb, hr}, axpbyBody(ra.len(), alpha, beta))
}

// Elementwise runs one of the builtin binary ops. Custom host functions have
// no device program and fail with ErrUnsupportedOp.
func (k Kernels[T]) Elementwise(a, b container.Operand[T], op backend.BinaryOp[T]) (out *Vector[T], err error) {
	c, err := begin[T](k.b, "elementwise")
	if err != nil {
		return nil, err
	}
	if !backend.IsBuiltin(op.Name) || op.Fn == nil {
		return nil, c.errorf("%w: no device kernel for %q", errdefs.ErrUnsupportedOp, op.Name)
	}
	defer func() { c.end(err) }()
	ra, rb, err := c.pair(a, b)
	if err != nil {
		return nil, err
	}
	ha, hb, err := c.loadPair(ra, rb)
	if err != nil {
		return nil, err
	}
	n := ra.len()
	if out, err = c.vector(n); err != nil {
		return nil, err
	}
	fn := op.Fn
	err = c.launch("elementwise_"+op.Name, []*device.Handle{ha, hb, out.h}, func(bufs [][]byte) {
		x, y, dst := elems[T](bufs[0], n), elems[T](bufs[1], n), elems[T](bufs[2], n)
		for i := range dst {
			dst[i] = fn(x[i], y[i])
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
