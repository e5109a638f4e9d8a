package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

var (
	_ container.Operand[float64]       = (*Vector[float64])(nil)
	_ container.MatrixOperand[float64] = (*Matrix[float64])(nil)
)

// State tracks where a device container's data currently stands.
type State uint32

const (
	// NotStaged: host data is attached but not yet copied to the device.
	NotStaged State = iota
	// Staged: device memory holds a copy of the host data.
	Staged
	// ComputedOnDevice: a kernel has run over the device buffer.
	ComputedOnDevice
	// ReadBack: the device contents were copied to host memory.
	ReadBack
)

func (s State) String() string {
	switch s {
	case NotStaged:
		return "not_staged"
	case Staged:
		return "staged"
	case ComputedOnDevice:
		return "computed_on_device"
	case ReadBack:
		return "read_back"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// buffer is the device storage shared by Vector and Matrix. It owns at most
// one handle, which is never shared with another container.
type buffer[T dtype.Scalar] struct {
	b        *Backend
	n        int
	mu       sync.Mutex
	h        *device.Handle
	pending  []T
	state    atomic.Uint32
	released atomic.Bool
}

func (x *buffer[T]) Backend() *Backend { return x.b }
func (x *buffer[T]) State() State      { return State(x.state.Load()) }
func (x *buffer[T]) Released() bool    { return x.released.Load() }

func (x *buffer[T]) setState(s State) { x.state.Store(uint32(s)) }

// Handle returns the device handle, or nil while the data is not staged.
func (x *buffer[T]) Handle() *device.Handle {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.h
}

// handle returns the device buffer, staging pending host data first.
func (x *buffer[T]) handle(op string) (*device.Handle, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.released.Load() {
		return nil, fmt.Errorf("gpu %s: %w", op, errdefs.ErrReleased)
	}
	if x.h != nil {
		return x.h, nil
	}
	if err := x.b.available(op); err != nil {
		return nil, err
	}
	h, err := allocElems[T](x.b.driver, x.n)
	if err != nil {
		return nil, fmt.Errorf("gpu %s: stage: %w", op, err)
	}
	if err := x.b.upload(h, bytesOf(x.pending)); err != nil {
		_ = h.Free()
		return nil, fmt.Errorf("gpu %s: stage: %w", op, err)
	}
	x.h = h
	x.pending = nil
	x.setState(Staged)
	return h, nil
}

func (x *buffer[T]) read(op string) ([]T, error) {
	h, err := x.handle(op)
	if err != nil {
		return nil, err
	}
	if err := x.b.available(op); err != nil {
		return nil, err
	}
	out := make([]T, x.n)
	if err := x.b.download(h, bytesOf(out)); err != nil {
		return nil, fmt.Errorf("gpu %s: %w", op, err)
	}
	x.setState(ReadBack)
	return out, nil
}

// Release frees the device handle. It is idempotent; releasing after the
// device context was torn down is logged by the driver and not an error.
func (x *buffer[T]) Release() error {
	if x.released.Swap(true) {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.pending = nil
	if x.h == nil {
		return nil
	}
	h := x.h
	x.h = nil
	return h.Free()
}

// Vector is a device-resident 1-D container.
type Vector[T dtype.Scalar] struct {
	buffer[T]
}

// Residency and DType do not dereference v, so a nil vector still routes.
func (v *Vector[T]) Residency() container.Residency { return container.Device }
func (v *Vector[T]) DType() dtype.DType             { return dtype.Of[T]() }
func (v *Vector[T]) Len() int                       { return v.n }
func (v *Vector[T]) Zero() (zero T)                 { return }

func (v *Vector[T]) String() string {
	return fmt.Sprintf("gpu.Vector[%s](len=%d, %s)", v.DType(), v.n, v.State())
}

// Wrap returns a device vector over host that is staged the first time a
// kernel touches it. host is read, never written, and must not change until
// then.
func Wrap[T dtype.Scalar](b *Backend, host *container.Vector[T]) (*Vector[T], error) {
	if err := checkType[T](b, "wrap"); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, fmt.Errorf("gpu wrap: %w: nil vector", errdefs.ErrDimensionMismatch)
	}
	if err := host.Check(); err != nil {
		return nil, fmt.Errorf("gpu wrap: %w", err)
	}
	v := &Vector[T]{}
	v.b, v.n, v.pending = b, host.Len(), host.Data()
	return v, nil
}

// Upload stages host immediately.
func Upload[T dtype.Scalar](b *Backend, host *container.Vector[T]) (*Vector[T], error) {
	v, err := Wrap(b, host)
	if err != nil {
		return nil, err
	}
	if _, err := v.handle("upload"); err != nil {
		return nil, err
	}
	return v, nil
}

// NewVector allocates n device elements set to fill, or zero.
func NewVector[T dtype.Scalar](b *Backend, n int, fill ...T) (*Vector[T], error) {
	c, err := begin[T](b, "new_vector")
	if err != nil {
		return nil, err
	}
	v, err := c.vector(n)
	if err == nil {
		var value T
		if len(fill) > 0 {
			value = fill[0]
		}
		err = c.fill(v.h, n, value)
	}
	c.end(err)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ToHost copies the device contents into a new owned host vector.
func (v *Vector[T]) ToHost() (*container.Vector[T], error) {
	data, err := v.read("to_host")
	if err != nil {
		return nil, err
	}
	return container.VectorFrom(data)
}

// MoveToHost reads the contents back and frees the device handle.
func (v *Vector[T]) MoveToHost() (*container.Vector[T], error) {
	host, err := v.ToHost()
	if err != nil {
		return nil, err
	}
	if err := v.Release(); err != nil {
		return nil, fmt.Errorf("gpu move_to_host: %w", err)
	}
	return host, nil
}

// Matrix is a device-resident column-major 2-D container.
type Matrix[T dtype.Scalar] struct {
	buffer[T]
	rows, cols int
}

func (m *Matrix[T]) Residency() container.Residency { return container.Device }
func (m *Matrix[T]) DType() dtype.DType             { return dtype.Of[T]() }
func (m *Matrix[T]) Dims() (int, int)               { return m.rows, m.cols }
func (m *Matrix[T]) Len() int                       { return m.n }
func (m *Matrix[T]) Zero() (zero T)                 { return }

func (m *Matrix[T]) String() string {
	return fmt.Sprintf("gpu.Matrix[%s](%dx%d, %s)", m.DType(), m.rows, m.cols, m.State())
}

// WrapMatrix is the matrix form of Wrap.
func WrapMatrix[T dtype.Scalar](b *Backend, host *container.Matrix[T]) (*Matrix[T], error) {
	if err := checkType[T](b, "wrap"); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, fmt.Errorf("gpu wrap: %w: nil matrix", errdefs.ErrDimensionMismatch)
	}
	if err := host.Check(); err != nil {
		return nil, fmt.Errorf("gpu wrap: %w", err)
	}
	m := &Matrix[T]{}
	m.rows, m.cols = host.Dims()
	m.b, m.n, m.pending = b, host.Len(), host.Data()
	return m, nil
}

func UploadMatrix[T dtype.Scalar](b *Backend, host *container.Matrix[T]) (*Matrix[T], error) {
	m, err := WrapMatrix(b, host)
	if err != nil {
		return nil, err
	}
	if _, err := m.handle("upload"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Matrix[T]) ToHost() (*container.Matrix[T], error) {
	data, err := m.read("to_host")
	if err != nil {
		return nil, err
	}
	return container.MatrixFrom(m.rows, m.cols, data)
}

func (m *Matrix[T]) MoveToHost() (*container.Matrix[T], error) {
	host, err := m.ToHost()
	if err != nil {
		return nil, err
	}
	if err := m.Release(); err != nil {
		return nil, fmt.Errorf("gpu move_to_host: %w", err)
	}
	return host, nil
}
