package container

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// Block is the rows x cols region of a matrix whose top left element is
// (Row, Col). It references the matrix and copies nothing.
type Block[T dtype.Scalar] struct {
	Of         MatrixOperand[T]
	Row, Col   int
	Rows, Cols int
}

// NewBlock checks that the region lies inside m.
func NewBlock[T dtype.Scalar](m MatrixOperand[T], row, col, rows, cols int) (Block[T], error) {
	if m == nil {
		return Block[T]{}, fmt.Errorf("block: %w: nil matrix", errdefs.ErrBadOperand)
	}
	r, c := m.Dims()
	if row < 0 || col < 0 || rows <= 0 || cols <= 0 || row+rows > r || col+cols > c {
		return Block[T]{}, fmt.Errorf("block (%d,%d)+%dx%d: %w: matrix is %dx%d",
			row, col, rows, cols, errdefs.ErrDimensionMismatch, r, c)
	}
	return Block[T]{Of: m, Row: row, Col: col, Rows: rows, Cols: cols}, nil
}

// WholeBlock covers all of m.
func WholeBlock[T dtype.Scalar](m MatrixOperand[T]) Block[T] {
	r, c := m.Dims()
	return Block[T]{Of: m, Rows: r, Cols: c}
}

func (b Block[T]) DType() dtype.DType { return dtype.Of[T]() }

// Residency is the residency of the underlying matrix.
func (b Block[T]) Residency() Residency {
	if b.Of == nil {
		return Host
	}
	return b.Of.Residency()
}

// Check revalidates the region against the matrix it was cut from.
func (b Block[T]) Check() error {
	_, err := NewBlock(b.Of, b.Row, b.Col, b.Rows, b.Cols)
	return err
}

func (b Block[T]) String() string {
	return fmt.Sprintf("Block[%s](%d,%d)+%dx%d", dtype.Of[T](), b.Row, b.Col, b.Rows, b.Cols)
}
