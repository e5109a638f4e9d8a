//go:build linalg_gpu_redux

package traits

import (
	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

const ReduxBackend = backend.GPU

type (
	ReduxScalar interface{ DeviceScalar }
	ReduxReal   interface{ DeviceScalar }
)

func ReduxKernels[T ReduxScalar](d *linalg.Dispatcher) gpu.Kernels[T] {
	return gpu.For[T](d.GPU())
}

func Max[T ReduxReal](d *linalg.Dispatcher, a container.Operand[T]) (T, error) {
	return gpu.Max(d.GPU(), a)
}

func Mean[T ReduxReal](d *linalg.Dispatcher, a container.Operand[T]) (float64, error) {
	return gpu.Mean(d.GPU(), a)
}

func Norm[T dtype.Float](d *linalg.Dispatcher, a container.Operand[T]) (T, error) {
	return gpu.Norm(d.GPU(), a)
}
