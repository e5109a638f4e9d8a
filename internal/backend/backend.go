// Package backend defines the operation surface every compute backend
// provides. Concrete backends live in the cpu and gpu subpackages; the typed
// capability interfaces below are satisfied per scalar type by each backend's
// Kernels value, so the choice of backend is made by which object is invoked.
package backend

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
)

// Kind identifies a class of compute device.
type Kind uint8

const (
	CPU Kind = iota
	GPU
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	Kind  Kind
	Types dtype.Set
	Ops   OpSet
	// Features lists implementation details worth logging (SIMD flags,
	// device name, BLAS provider).
	Features []string
}

// Supports reports whether op is implemented for d.
func (c Capabilities) Supports(op Op, d dtype.DType) bool {
	return c.Types.Has(d) && c.Ops.Has(op)
}

// Backend is the type-erased view of a backend held by the dispatcher.
type Backend interface {
	Name() string
	Kind() Kind
	Capabilities() Capabilities
}

// Axis selects the reduction direction of a matrix sum.
type Axis uint8

const (
	// Cols reduces each column to one value (result length = cols).
	Cols Axis = iota
	// Rows reduces each row to one value (result length = rows).
	Rows
)

func (a Axis) String() string {
	if a == Rows {
		return "rows"
	}
	return "cols"
}

// VectorOps is the vector capability set over scalar T. V is the vector type
// the backend returns; inputs may be any Operand the backend accepts.
type VectorOps[T dtype.Scalar, V container.Operand[T]] interface {
	Dot(a, b container.Operand[T]) (T, error)
	Sum(a container.Operand[T]) (T, error)
	Scale(a container.Operand[T], alpha T) (V, error)
	ScaleInPlace(a V, alpha T) error
	Add(a, b container.Operand[T], alpha, beta T) (V, error)
	AddInPlace(a, b container.Operand[T], alpha, beta T, result V) error
	Elementwise(a, b container.Operand[T], op BinaryOp[T]) (V, error)
}

// MatrixOps is the matrix capability set over scalar T.
type MatrixOps[T dtype.Scalar, V container.Operand[T], M container.MatrixOperand[T]] interface {
	MatrixSum(a container.MatrixOperand[T], noDiag bool) (T, error)
	SumAxis(a container.MatrixOperand[T], axis Axis, noDiag bool) (V, error)
	MatrixScale(a container.MatrixOperand[T], alpha T) (M, error)
	MatrixAdd(a, b container.MatrixOperand[T], alpha, beta T) (M, error)
	ElementProd(a, b container.MatrixOperand[T]) (M, error)
	MatrixProd(a, b container.MatrixOperand[T], transA, transB bool) (M, error)
	Trace(a container.MatrixOperand[T]) (T, error)
	// SumSymmetric sums a square matrix known to be symmetric from its
	// strict upper triangle and diagonal.
	SumSymmetric(a container.MatrixOperand[T], noDiag bool) (T, error)
	BlockSum(b container.Block[T], noDiag bool) (T, error)
	BlockSumSymmetric(b container.Block[T], noDiag bool) (T, error)
	BlockSumAxis(b container.Block[T], axis Axis, noDiag bool) (V, error)
}
