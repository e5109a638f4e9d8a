// Package cpu implements the backend surface directly over host buffers.
// All calls are synchronous. Large elementwise loops are split across worker
// goroutines, which are joined before the call returns; reductions always run
// on the calling goroutine in index order.
package cpu

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xcpu "golang.org/x/sys/cpu"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// ensure interface compliance
var (
	_ backend.Backend                                                                    = (*Backend)(nil)
	_ backend.VectorOps[float64, *container.Vector[float64]]                             = Kernels[float64]{}
	_ backend.VectorOps[complex64, *container.Vector[complex64]]                         = Kernels[complex64]{}
	_ backend.MatrixOps[int32, *container.Vector[int32], *container.Matrix[int32]]       = Kernels[int32]{}
	_ backend.MatrixOps[float32, *container.Vector[float32], *container.Matrix[float32]] = Kernels[float32]{}
)

// parallelThreshold is the element count above which elementwise kernels fan
// out across workers.
const parallelThreshold = 1 << 16

var supportedOps = backend.OpsOf(
	backend.OpDot, backend.OpSum, backend.OpSumAxis, backend.OpScale, backend.OpScaleInPlace,
	backend.OpAdd, backend.OpAddInPlace, backend.OpElementwise, backend.OpMax, backend.OpMean,
	backend.OpNorm, backend.OpSetConst, backend.OpRangeFill, backend.OpLogistic, backend.OpExponent,
	backend.OpElementProd, backend.OpMatrixProd, backend.OpIdentity, backend.OpCholesky,
	backend.OpCholeskySolve, backend.OpEigenSymmetric, backend.OpCrossEntropy, backend.OpSquaredError,
	backend.OpTrace, backend.OpSumSymmetric, backend.OpMeanAxis,
)

// Backend is the host compute backend.
type Backend struct {
	name    string
	workers int
	logger  zerolog.Logger
}

type Option func(*Backend)

// WithWorkers bounds the goroutines used by elementwise kernels. Values below
// one mean serial execution.
func WithWorkers(n int) Option {
	return func(b *Backend) {
		if n < 1 {
			n = 1
		}
		b.workers = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		name:    "CPU",
		workers: runtime.NumCPU(),
		logger:  log.Logger,
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With().Str("backend", b.name).Logger()
	b.logger.Debug().Int("workers", b.workers).Strs("features", hostFeatures()).Str("blas", blasProvider).Msg("CPU backend ready")
	return b
}

func (b *Backend) Name() string       { return b.name }
func (b *Backend) Kind() backend.Kind { return backend.CPU }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Kind:     backend.CPU,
		Types:    dtype.All,
		Ops:      supportedOps,
		Features: append(hostFeatures(), "blas="+blasProvider),
	}
}

func hostFeatures() []string {
	var f []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if xcpu.X86.HasAVX2 {
			f = append(f, "avx2")
		}
		if xcpu.X86.HasAVX512F {
			f = append(f, "avx512f")
		}
		if xcpu.X86.HasFMA {
			f = append(f, "fma")
		}
	case "arm64":
		if xcpu.ARM64.HasASIMD {
			f = append(f, "neon")
		}
		if xcpu.ARM64.HasSVE {
			f = append(f, "sve")
		}
	}
	return f
}

// parallelFor runs fn over [0, n) in contiguous chunks.
func (b *Backend) parallelFor(n int, fn func(start, end int)) {
	if n < parallelThreshold || b.workers <= 1 {
		fn(0, n)
		return
	}
	var wg sync.WaitGroup
	perWorker := (n + b.workers - 1) / b.workers
	for w := 0; w < b.workers; w++ {
		start := w * perWorker
		if start >= n {
			break
		}
		end := min(start+perWorker, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Kernels binds the backend to scalar type T.
type Kernels[T dtype.Scalar] struct {
	b *Backend
}

// For returns b's kernels for T.
func For[T dtype.Scalar](b *Backend) Kernels[T] {
	return Kernels[T]{b: b}
}

func (k Kernels[T]) Backend() *Backend { return k.b }

func hostVec[T dtype.Scalar](op string, o container.Operand[T]) (*container.Vector[T], error) {
	v, ok := o.(*container.Vector[T])
	switch {
	case o == nil || ok && v == nil:
		return nil, fmt.Errorf("cpu %s: %w: nil operand", op, errdefs.ErrBadOperand)
	case !ok && o.Residency() != container.Host:
		return nil, fmt.Errorf("cpu %s: %w: operand is %s resident", op, errdefs.ErrMixedBackend, o.Residency())
	case !ok:
		return nil, fmt.Errorf("cpu %s: %w: foreign operand %T", op, errdefs.ErrMixedBackend, o)
	}
	if err := v.Check(); err != nil {
		return nil, fmt.Errorf("cpu %s: %w", op, err)
	}
	return v, nil
}

func hostMat[T dtype.Scalar](op string, o container.MatrixOperand[T]) (*container.Matrix[T], error) {
	m, ok := o.(*container.Matrix[T])
	switch {
	case o == nil || ok && m == nil:
		return nil, fmt.Errorf("cpu %s: %w: nil operand", op, errdefs.ErrBadOperand)
	case !ok && o.Residency() != container.Host:
		return nil, fmt.Errorf("cpu %s: %w: operand is %s resident", op, errdefs.ErrMixedBackend, o.Residency())
	case !ok:
		return nil, fmt.Errorf("cpu %s: %w: foreign operand %T", op, errdefs.ErrMixedBackend, o)
	}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("cpu %s: %w", op, err)
	}
	return m, nil
}

func hostPair[T dtype.Scalar](op string, a, b container.Operand[T]) (*container.Vector[T], *container.Vector[T], error) {
	va, err := hostVec(op, a)
	if err != nil {
		return nil, nil, err
	}
	vb, err := hostVec(op, b)
	if err != nil {
		return nil, nil, err
	}
	if va.Len() != vb.Len() {
		return nil, nil, errdefs.Dimension("cpu "+op, va.Len(), vb.Len())
	}
	return va, vb, nil
}
