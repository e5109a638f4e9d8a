// Package errdefs holds the error kinds reported by the linalg layer. Every
// error returned by a backend or the dispatcher wraps exactly one of these
// sentinels, so callers branch with errors.Is.
package errdefs

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
)

var (
	ErrAllocation         = errors.New("allocation failed")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrUnsupportedType    = errors.New("unsupported scalar type")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrMixedBackend       = errors.New("operands resident on different backends")

	// ErrUnsupportedOp is returned when a backend has no kernel for a pluggable op.
	ErrUnsupportedOp = errors.New("unsupported operation")
	// ErrReleased is returned when a released container is used.
	ErrReleased = errors.New("container released")
	// ErrNumerical is returned when a factorisation cannot proceed, for
	// example a Cholesky factor of a matrix that is not positive definite.
	ErrNumerical = errors.New("numerical failure")
	// ErrBadOperand is returned by name-based dispatch when the operand list
	// does not fit the operation.
	ErrBadOperand = errors.New("bad operand")
)

// Dimension reports a length mismatch between two operands of op.
func Dimension(op string, want, got int) error {
	return fmt.Errorf("%s: %w: %d != %d", op, ErrDimensionMismatch, want, got)
}

// Shape reports a shape mismatch between two matrix operands of op.
func Shape(op string, r1, c1, r2, c2 int) error {
	return fmt.Errorf("%s: %w: %dx%d vs %dx%d", op, ErrDimensionMismatch, r1, c1, r2, c2)
}

// Unsupported reports that backend has no implementation of op for d.
func Unsupported(op, backend string, d dtype.DType) error {
	return fmt.Errorf("%s: %w: %s backend has no %s kernel", op, ErrUnsupportedType, backend, d)
}

// Kind returns a short label for the sentinel wrapped by err, used as a
// metric label. Unknown errors map to "other".
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAllocation):
		return "allocation"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrMixedBackend):
		return "mixed_backend"
	case errors.Is(err, ErrUnsupportedOp):
		return "unsupported_op"
	case errors.Is(err, ErrReleased):
		return "released"
	case errors.Is(err, ErrNumerical):
		return "numerical"
	case errors.Is(err, ErrBadOperand):
		return "bad_operand"
	}
	return "other"
}
