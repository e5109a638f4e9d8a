//go:build !linalg_gpu_core

package traits

import (
	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

const CoreBackend = backend.CPU

type CoreScalar interface{ dtype.Scalar }

// CoreKernels returns the elementwise and matrix kernels of d's CPU backend.
func CoreKernels[T CoreScalar](d *linalg.Dispatcher) cpu.Kernels[T] {
	return cpu.For[T](d.CPU())
}
