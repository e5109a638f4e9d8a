// Package traits binds a module and scalar type to one backend at build time.
//
// Call sites that always run on the same backend use the accessors here
// instead of the Dispatcher, so no residency inspection happens per call.
// The backend of each module is chosen with build tags:
//
//	linalg_gpu_core   Core (elementwise and matrix kernels) on the GPU
//	linalg_gpu_redux  Redux (dot, sums, max, mean, norm) on the GPU
//
// Linsolver and Eigsolver always run on the CPU. Each accessor's type
// constraint is the set of scalar types its backend implements, so asking
// for an unsupported combination is a compile error. BackendFor answers the
// same question at run time for callers that only hold a dtype.DType.
package traits

import (
	"fmt"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

// Module groups operations that share a backend binding.
type Module uint8

const (
	Core Module = iota
	Redux
	Linsolver
	Eigsolver
)

var moduleNames = [...]string{"core", "redux", "linsolver", "eigsolver"}

func (m Module) String() string {
	if int(m) < len(moduleNames) {
		return moduleNames[m]
	}
	return fmt.Sprintf("Module(%d)", uint8(m))
}

// Modules lists every module.
func Modules() []Module { return []Module{Core, Redux, Linsolver, Eigsolver} }

// DeviceScalar is the scalar types with device kernels.
type DeviceScalar interface {
	~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// BackendFor reports the backend bound to m for dt in this build. It fails
// with errdefs.ErrUnsupportedType when that backend has no implementation
// for dt.
func BackendFor(m Module, dt dtype.DType) (backend.Kind, error) {
	var (
		kind  backend.Kind
		types dtype.Set
	)
	switch m {
	case Core:
		kind = CoreBackend
	case Redux:
		kind = ReduxBackend
	case Linsolver, Eigsolver:
		kind = backend.CPU
		types = dtype.SetOf(dtype.Float32, dtype.Float64)
	default:
		return 0, fmt.Errorf("traits: unknown module %s", m)
	}
	if types == 0 {
		types = dtype.All
		if kind == backend.GPU {
			types = gpu.Types
		}
	}
	if !types.Has(dt) {
		return 0, fmt.Errorf("traits %s: %w: %s on %s", m, errdefs.ErrUnsupportedType, dt, kind)
	}
	return kind, nil
}

// CholeskyFactor runs on the CPU backend of d.
func CholeskyFactor[T dtype.Float](d *linalg.Dispatcher, a container.MatrixOperand[T], lower bool) (*container.Matrix[T], error) {
	return cpu.CholeskyFactor(d.CPU(), a, lower)
}

func CholeskySolve[T dtype.Float](d *linalg.Dispatcher, factor container.MatrixOperand[T], rhs container.Operand[T], lower bool) (*container.Vector[T], error) {
	return cpu.CholeskySolve(d.CPU(), factor, rhs, lower)
}

func EigenSymmetric[T dtype.Float](d *linalg.Dispatcher, a container.MatrixOperand[T]) (*container.Vector[T], *container.Matrix[T], error) {
	return cpu.EigenSymmetric(d.CPU(), a)
}
