package device

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// CUDAName is reserved for a native CUDA driver. This build carries no CUDA
// bindings, so opening it always fails.
const CUDAName = "cuda"

func init() {
	Register(CUDAName, func(...Option) (Driver, error) {
		return nil, fmt.Errorf("%w: CUDA support is not compiled into this build", errdefs.ErrBackendUnavailable)
	})
}
