//go:build !linalg_gpu_redux

package traits

import (
	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

const ReduxBackend = backend.CPU

type (
	ReduxScalar interface{ dtype.Scalar }
	ReduxReal   interface{ dtype.Real }
)

// ReduxKernels returns the kernels whose Dot, Sum, MatrixSum and SumAxis
// make up the reduction module.
func ReduxKernels[T ReduxScalar](d *linalg.Dispatcher) cpu.Kernels[T] {
	return cpu.For[T](d.CPU())
}

func Max[T ReduxReal](d *linalg.Dispatcher, a container.Operand[T]) (T, error) {
	return cpu.Max(d.CPU(), a)
}

func Mean[T ReduxReal](d *linalg.Dispatcher, a container.Operand[T]) (float64, error) {
	return cpu.Mean(d.CPU(), a)
}

func Norm[T dtype.Float](d *linalg.Dispatcher, a container.Operand[T]) (T, error) {
	return cpu.Norm(d.CPU(), a)
}
