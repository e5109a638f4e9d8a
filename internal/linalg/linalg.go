// Package linalg routes numeric operations to the active CPU or GPU backend.
//
// A Dispatcher always holds a CPU backend and optionally a GPU backend.
// Operations inspect the residency of their container operands: host
// operands run on the CPU backend, device operands on the GPU backend, and a
// call mixing the two fails with errdefs.ErrMixedBackend. Nothing is promoted
// between backends implicitly and a GPU failure never falls back to the CPU.
//
// SetCPUBackend, SetGPUBackend and Teardown are safe to call concurrently with
// operations, but an operation that already picked up a GPU backend keeps
// using it; swap backends only when no calls are in flight.
package linalg

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

const tracerName = "github.com/23skdu/longbow-linalg/internal/linalg"

// Dispatcher holds the active backends.
type Dispatcher struct {
	mu     sync.RWMutex
	cpu    *cpu.Backend
	gpu    *gpu.Backend
	sem    *semaphore.Weighted
	logger zerolog.Logger
	tracer trace.Tracer
}

type Option func(*Dispatcher)

func WithCPUBackend(b *cpu.Backend) Option {
	return func(d *Dispatcher) { d.cpu = b }
}

func WithGPUBackend(b *gpu.Backend) Option {
	return func(d *Dispatcher) { d.gpu = b }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracer sets the tracer used by Dispatch. The default is the global
// OpenTelemetry provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithDeviceConcurrency bounds the number of GPU operations running at once.
// Further calls wait for a slot, or until their context is done. Zero means
// unbounded.
func WithDeviceConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.sem = nil
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: log.Logger}
	for _, o := range opts {
		o(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.cpu == nil {
		d.cpu = cpu.New(cpu.WithLogger(d.logger))
	}
	ev := d.logger.Debug().Str("cpu", d.cpu.Name())
	if d.gpu != nil {
		ev = ev.Str("gpu", d.gpu.Name())
	}
	ev.Msg("Dispatcher initialised")
	return d
}

// CPU returns the active CPU backend.
func (d *Dispatcher) CPU() *cpu.Backend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cpu
}

// GPU returns the active GPU backend, or nil.
func (d *Dispatcher) GPU() *gpu.Backend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gpu
}

// Backends lists the active backends, CPU first.
func (d *Dispatcher) Backends() []backend.Backend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []backend.Backend{d.cpu}
	if d.gpu != nil {
		out = append(out, d.gpu)
	}
	return out
}

// SetCPUBackend replaces the CPU backend. nil restores a default one.
func (d *Dispatcher) SetCPUBackend(b *cpu.Backend) {
	if b == nil {
		b = cpu.New(cpu.WithLogger(d.logger))
	}
	d.mu.Lock()
	d.cpu = b
	d.mu.Unlock()
	d.logger.Debug().Str("cpu", b.Name()).Msg("CPU backend set")
}

// SetGPUBackend replaces the GPU backend and returns the previous one. nil
// clears it. Containers still holding memory on the previous backend are not
// freed; the caller releases them and closes the previous backend.
func (d *Dispatcher) SetGPUBackend(b *gpu.Backend) (prev *gpu.Backend) {
	d.mu.Lock()
	prev, d.gpu = d.gpu, b
	d.mu.Unlock()

	if prev != nil {
		if n := prev.Outstanding(); n > 0 {
			d.logger.Warn().Str("gpu", prev.Name()).Int("handles", n).Msg("Replaced GPU backend still has live device memory")
		}
	}
	if b != nil {
		d.logger.Debug().Str("gpu", b.Name()).Msg("GPU backend set")
	} else {
		d.logger.Debug().Msg("GPU backend cleared")
	}
	return prev
}

// Teardown shuts the GPU backend down in two phases. It first checks that
// no device handles are live and fails with device.ErrHandlesOutstanding,
// keeping the backend, if any are. Only then is the device context closed
// and the backend cleared. The CPU backend is unaffected.
func (d *Dispatcher) Teardown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.gpu
	if g == nil {
		return nil
	}
	if n := g.Outstanding(); n > 0 {
		d.logger.Warn().Str("gpu", g.Name()).Int("handles", n).Msg("Teardown refused")
		return fmt.Errorf("teardown: %w: %d live on %s", device.ErrHandlesOutstanding, n, g.Name())
	}
	if err := g.Close(); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	d.gpu = nil
	d.logger.Debug().Str("gpu", g.Name()).Msg("GPU backend torn down")
	return nil
}

type residencer interface {
	Residency() container.Residency
}

// placement returns the residency shared by the container operands.
func placement(op backend.Op, operands []any) (container.Residency, error) {
	var (
		where container.Residency
		first = -1
	)
	for i, o := range operands {
		r, ok := o.(residencer)
		if !ok {
			continue
		}
		res := r.Residency()
		if first < 0 {
			where, first = res, i
			continue
		}
		if res != where {
			return 0, fmt.Errorf("%s: %w: operand %d is %s resident, operand %d is %s",
				op, errdefs.ErrMixedBackend, first, where, i, res)
		}
	}
	if first < 0 {
		return 0, fmt.Errorf("%s: %w: no container operands", op, errdefs.ErrBadOperand)
	}
	return where, nil
}

// run routes op to onCPU or onGPU by the residency of operands. onGPU is nil
// for operations without device kernels.
func (d *Dispatcher) run(ctx context.Context, op backend.Op, onCPU func(*cpu.Backend) error, onGPU func(*gpu.Backend) error, operands ...any) (err error) {
	defer func() {
		if err != nil {
			dispatchErrors.WithLabelValues(op.String(), errdefs.Kind(err)).Inc()
		}
	}()
	where, err := placement(op, operands)
	if err != nil {
		return err
	}
	d.mu.RLock()
	c, g, sem := d.cpu, d.gpu, d.sem
	d.mu.RUnlock()

	if where == container.Host {
		dispatchTotal.WithLabelValues(op.String(), backend.CPU.String()).Inc()
		return onCPU(c)
	}
	if g == nil {
		return fmt.Errorf("%s: %w: no GPU backend set", op, errdefs.ErrBackendUnavailable)
	}
	if onGPU == nil {
		return fmt.Errorf("%s: %w: no device kernel", op, errdefs.ErrUnsupportedOp)
	}
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%s: waiting for device: %w", op, err)
		}
		defer sem.Release(1)
	}
	dispatchTotal.WithLabelValues(op.String(), backend.GPU.String()).Inc()
	return onGPU(g)
}
