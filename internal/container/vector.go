package container

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

var _ Operand[float64] = (*Vector[float64])(nil)

// Vector is a host-resident 1-D container.
type Vector[T dtype.Scalar] struct {
	data     []T
	owns     bool
	released bool
}

// NewVector allocates an owned vector of length n. If fill is given its first
// value initialises every element.
func NewVector[T dtype.Scalar](n int, fill ...T) (*Vector[T], error) {
	buf, err := alloc[T](n)
	if err != nil {
		return nil, err
	}
	if len(fill) > 0 && fill[0] != 0 {
		fillSlice(buf, fill[0])
	}
	return &Vector[T]{data: buf, owns: true}, nil
}

// VectorFrom allocates an owned vector holding a copy of data.
func VectorFrom[T dtype.Scalar](data []T) (*Vector[T], error) {
	buf, err := alloc[T](len(data))
	if err != nil {
		return nil, err
	}
	copy(buf, data)
	return &Vector[T]{data: buf, owns: true}, nil
}

// View wraps the first n elements of buf without taking ownership. The caller
// keeps buf alive for as long as the view is used.
func View[T dtype.Scalar](buf []T, n int) (*Vector[T], error) {
	if n < 0 || n > len(buf) {
		return nil, fmt.Errorf("view: %w: length %d outside buffer of %d", errdefs.ErrDimensionMismatch, n, len(buf))
	}
	return &Vector[T]{data: buf[:n:n]}, nil
}

func (v *Vector[T]) Len() int             { return len(v.data) }
func (v *Vector[T]) Residency() Residency { return Host }
func (v *Vector[T]) DType() dtype.DType   { return dtype.Of[T]() }
func (v *Vector[T]) OwnsMemory() bool     { return v.owns }
func (v *Vector[T]) Released() bool       { return v.released }
func (v *Vector[T]) Zero() (zero T)       { return }

// Data returns the backing slice. Writes through it are visible to every
// container sharing the buffer.
func (v *Vector[T]) Data() []T { return v.data }

// Release drops an owned buffer. It is a no-op for views and for vectors
// already released; the viewed buffer is never touched.
func (v *Vector[T]) Release() {
	if !v.owns || v.released {
		return
	}
	v.data = nil
	v.released = true
}

// Check returns ErrReleased if v can no longer be read.
func (v *Vector[T]) Check() error {
	if v.released {
		return errdefs.ErrReleased
	}
	return nil
}

// At is the unchecked element accessor. Range checks only run when built with
// the linalgdebug tag.
func (v *Vector[T]) At(i int) T {
	if boundsChecks && (i < 0 || i >= len(v.data)) {
		panic(fmt.Sprintf("vector: index %d out of range [0,%d)", i, len(v.data)))
	}
	return v.data[i]
}

// Set is the unchecked element setter.
func (v *Vector[T]) Set(i int, x T) {
	if boundsChecks && (i < 0 || i >= len(v.data)) {
		panic(fmt.Sprintf("vector: index %d out of range [0,%d)", i, len(v.data)))
	}
	v.data[i] = x
}

// AtSafe returns element i or an error when i is out of range.
func (v *Vector[T]) AtSafe(i int) (T, error) {
	var zero T
	if err := v.Check(); err != nil {
		return zero, err
	}
	if i < 0 || i >= len(v.data) {
		return zero, fmt.Errorf("vector: index %d: %w: length %d", i, errdefs.ErrDimensionMismatch, len(v.data))
	}
	return v.data[i], nil
}

// SetSafe sets element i or returns an error when i is out of range.
func (v *Vector[T]) SetSafe(i int, x T) error {
	if err := v.Check(); err != nil {
		return err
	}
	if i < 0 || i >= len(v.data) {
		return fmt.Errorf("vector: index %d: %w: length %d", i, errdefs.ErrDimensionMismatch, len(v.data))
	}
	v.data[i] = x
	return nil
}

// Share returns a non-owning vector aliasing v's buffer.
func (v *Vector[T]) Share() *Vector[T] {
	return &Vector[T]{data: v.data, released: v.released}
}

// Clone returns an owned deep copy of v.
func (v *Vector[T]) Clone() (*Vector[T], error) {
	if err := v.Check(); err != nil {
		return nil, err
	}
	return VectorFrom(v.data)
}

func (v *Vector[T]) String() string {
	own := "view"
	if v.owns {
		own = "owned"
	}
	return fmt.Sprintf("Vector[%s](len=%d, %s)", dtype.Of[T](), len(v.data), own)
}
