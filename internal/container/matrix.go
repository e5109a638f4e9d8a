package container

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

var _ MatrixOperand[float64] = (*Matrix[float64])(nil)

// Matrix is a host-resident 2-D container stored column-major: element (i, j)
// lives at data[j*rows+i].
type Matrix[T dtype.Scalar] struct {
	data       []T
	rows, cols int
	owns       bool
	released   bool
}

// NewMatrix allocates an owned rows x cols matrix, optionally filled.
func NewMatrix[T dtype.Scalar](rows, cols int, fill ...T) (*Matrix[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix %dx%d: %w: dimensions must be positive", rows, cols, errdefs.ErrAllocation)
	}
	buf, err := alloc[T](rows * cols)
	if err != nil {
		return nil, err
	}
	if len(fill) > 0 && fill[0] != 0 {
		fillSlice(buf, fill[0])
	}
	return &Matrix[T]{data: buf, rows: rows, cols: cols, owns: true}, nil
}

// MatrixFrom allocates an owned matrix holding a copy of the column-major data.
func MatrixFrom[T dtype.Scalar](rows, cols int, data []T) (*Matrix[T], error) {
	if rows*cols != len(data) {
		return nil, fmt.Errorf("matrix %dx%d: %w: got %d elements", rows, cols, errdefs.ErrDimensionMismatch, len(data))
	}
	m, err := NewMatrix[T](rows, cols)
	if err != nil {
		return nil, err
	}
	copy(m.data, data)
	return m, nil
}

// MatrixView wraps a column-major buffer without taking ownership.
func MatrixView[T dtype.Scalar](buf []T, rows, cols int) (*Matrix[T], error) {
	if rows < 0 || cols < 0 || rows*cols > len(buf) {
		return nil, fmt.Errorf("matrix view %dx%d: %w: buffer holds %d", rows, cols, errdefs.ErrDimensionMismatch, len(buf))
	}
	n := rows * cols
	return &Matrix[T]{data: buf[:n:n], rows: rows, cols: cols}, nil
}

func (m *Matrix[T]) Dims() (int, int)     { return m.rows, m.cols }
func (m *Matrix[T]) Len() int             { return len(m.data) }
func (m *Matrix[T]) Residency() Residency { return Host }
func (m *Matrix[T]) DType() dtype.DType   { return dtype.Of[T]() }
func (m *Matrix[T]) OwnsMemory() bool     { return m.owns }
func (m *Matrix[T]) Released() bool       { return m.released }
func (m *Matrix[T]) Data() []T            { return m.data }
func (m *Matrix[T]) Zero() (zero T)       { return }

// Release drops an owned buffer; views are left untouched.
func (m *Matrix[T]) Release() {
	if !m.owns || m.released {
		return
	}
	m.data = nil
	m.released = true
}

func (m *Matrix[T]) Check() error {
	if m.released {
		return errdefs.ErrReleased
	}
	return nil
}

func (m *Matrix[T]) At(i, j int) T {
	if boundsChecks && (i < 0 || i >= m.rows || j < 0 || j >= m.cols) {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of range %dx%d", i, j, m.rows, m.cols))
	}
	return m.data[j*m.rows+i]
}

func (m *Matrix[T]) Set(i, j int, x T) {
	if boundsChecks && (i < 0 || i >= m.rows || j < 0 || j >= m.cols) {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of range %dx%d", i, j, m.rows, m.cols))
	}
	m.data[j*m.rows+i] = x
}

func (m *Matrix[T]) AtSafe(i, j int) (T, error) {
	var zero T
	if err := m.Check(); err != nil {
		return zero, err
	}
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return zero, fmt.Errorf("matrix: index (%d,%d): %w: shape %dx%d", i, j, errdefs.ErrDimensionMismatch, m.rows, m.cols)
	}
	return m.data[j*m.rows+i], nil
}

// Col returns a non-owning view of column j.
func (m *Matrix[T]) Col(j int) (*Vector[T], error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	if j < 0 || j >= m.cols {
		return nil, fmt.Errorf("matrix: column %d: %w: %d columns", j, errdefs.ErrDimensionMismatch, m.cols)
	}
	return View(m.data[j*m.rows:], m.rows)
}

// AsVector returns a non-owning flat view over the column-major buffer.
func (m *Matrix[T]) AsVector() *Vector[T] {
	return &Vector[T]{data: m.data, released: m.released}
}

func (m *Matrix[T]) Share() *Matrix[T] {
	return &Matrix[T]{data: m.data, rows: m.rows, cols: m.cols, released: m.released}
}

func (m *Matrix[T]) Clone() (*Matrix[T], error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	return MatrixFrom(m.rows, m.cols, m.data)
}

func (m *Matrix[T]) String() string {
	own := "view"
	if m.owns {
		own = "owned"
	}
	return fmt.Sprintf("Matrix[%s](%dx%d, %s)", dtype.Of[T](), m.rows, m.cols, own)
}
