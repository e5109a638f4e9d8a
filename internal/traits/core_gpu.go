//go:build linalg_gpu_core

package traits

import (
	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

const CoreBackend = backend.GPU

type CoreScalar interface{ DeviceScalar }

// CoreKernels returns the elementwise and matrix kernels of d's GPU backend.
// Calls fail with errdefs.ErrBackendUnavailable while d has none.
func CoreKernels[T CoreScalar](d *linalg.Dispatcher) gpu.Kernels[T] {
	return gpu.For[T](d.GPU())
}
