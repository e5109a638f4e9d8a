package backend

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/dtype"
)

// Op names an operation of the backend surface.
type Op uint8

const (
	OpDot Op = iota
	OpSum
	OpSumAxis
	OpScale
	OpScaleInPlace
	OpAdd
	OpAddInPlace
	OpElementwise
	OpMax
	OpMean
	OpNorm
	OpSetConst
	OpRangeFill
	OpLogistic
	OpExponent
	OpElementProd
	OpMatrixProd
	OpIdentity
	OpCholesky
	OpCholeskySolve
	OpEigenSymmetric
	OpCrossEntropy
	OpSquaredError
	OpTrace
	OpSumSymmetric
	OpMeanAxis
	numOps
)

var opNames = [...]string{
	OpDot:            "dot",
	OpSum:            "sum",
	OpSumAxis:        "sum_axis",
	OpScale:          "scale",
	OpScaleInPlace:   "scale_inplace",
	OpAdd:            "add",
	OpAddInPlace:     "add_inplace",
	OpElementwise:    "elementwise",
	OpMax:            "max",
	OpMean:           "mean",
	OpNorm:           "norm",
	OpSetConst:       "set_const",
	OpRangeFill:      "range_fill",
	OpLogistic:       "logistic",
	OpExponent:       "exponent",
	OpElementProd:    "element_prod",
	OpMatrixProd:     "matrix_prod",
	OpIdentity:       "identity",
	OpCholesky:       "cholesky",
	OpCholeskySolve:  "cholesky_solve",
	OpEigenSymmetric: "eigen_symmetric",
	OpCrossEntropy:   "cross_entropy",
	OpSquaredError:   "squared_error",
	OpTrace:          "trace",
	OpSumSymmetric:   "sum_symmetric",
	OpMeanAxis:       "mean_axis",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

// ParseOp maps an operation name back to its Op.
func ParseOp(s string) (Op, error) {
	for i, n := range opNames {
		if n == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// OpSet is a bitmask of operations.
type OpSet uint64

func OpsOf(ops ...Op) OpSet {
	var s OpSet
	for _, o := range ops {
		s |= 1 << o
	}
	return s
}

func (s OpSet) Has(o Op) bool { return s&(1<<o) != 0 }

// BinaryOp is a pluggable elementwise operation. Name identifies the kernel a
// device backend must provide; Fn is the host implementation.
type BinaryOp[T dtype.Scalar] struct {
	Name string
	Fn   func(x, y T) T
}

// Builtin binary op names. Device backends only run ops with these names.
const (
	NameAdd = "add"
	NameSub = "sub"
	NameMul = "mul"
	NameDiv = "div"
	NameMin = "min"
	NameMax = "max"
)

func Plus[T dtype.Scalar]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameAdd, Fn: func(x, y T) T { return x + y }}
}

func Minus[T dtype.Scalar]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameSub, Fn: func(x, y T) T { return x - y }}
}

func Times[T dtype.Scalar]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameMul, Fn: func(x, y T) T { return x * y }}
}

// Divide panics on integer division by zero, like the Go operator.
func Divide[T dtype.Scalar]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameDiv, Fn: func(x, y T) T { return x / y }}
}

func Min[T dtype.Real]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameMin, Fn: func(x, y T) T { return min(x, y) }}
}

func Max[T dtype.Real]() BinaryOp[T] {
	return BinaryOp[T]{Name: NameMax, Fn: func(x, y T) T { return max(x, y) }}
}

// Custom wraps an arbitrary host function. Only the CPU backend runs it.
func Custom[T dtype.Scalar](name string, fn func(x, y T) T) BinaryOp[T] {
	return BinaryOp[T]{Name: "custom:" + name, Fn: fn}
}

// IsBuiltin reports whether name is one of the builtin kernels.
func IsBuiltin(name string) bool {
	switch name {
	case NameAdd, NameSub, NameMul, NameDiv, NameMin, NameMax:
		return true
	}
	return false
}
