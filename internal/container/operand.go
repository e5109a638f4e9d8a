// Package container provides the host-resident numeric containers passed
// through the linalg layer. A container wraps a contiguous buffer together with
// its shape and an ownership flag. Copies are shallow: the Go value, Share and
// View all alias the same buffer, and only Clone produces independent storage.
package container

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// Residency identifies the memory space holding a container's data.
type Residency uint8

const (
	Host Residency = iota
	Device
)

func (r Residency) String() string {
	switch r {
	case Host:
		return "host"
	case Device:
		return "device"
	}
	return fmt.Sprintf("residency(%d)", r)
}

// Operand is any vector, host or device resident. Zero ties the element
// type to the interface, so an int32 vector is not an Operand[float64].
type Operand[T dtype.Scalar] interface {
	Len() int
	Residency() Residency
	Zero() T
}

// MatrixOperand is any matrix, host or device resident.
type MatrixOperand[T dtype.Scalar] interface {
	Dims() (rows, cols int)
	Residency() Residency
	Zero() T
}

// alloc makes an owned buffer of n elements, turning runtime allocation
// failures into ErrAllocation.
func alloc[T dtype.Scalar](n int) (buf []T, err error) {
	if n <= 0 {
		return nil, fmt.Errorf("alloc %d x %s: %w: length must be positive", n, dtype.Of[T](), errdefs.ErrAllocation)
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("alloc %d x %s: %w: %v", n, dtype.Of[T](), errdefs.ErrAllocation, r)
		}
	}()
	return make([]T, n), nil
}

func fillSlice[T dtype.Scalar](buf []T, v T) {
	for i := range buf {
		buf[i] = v
	}
}
