// Package gpu implements the backend surface over device memory. Host
// operands are staged into device buffers before a kernel runs, kernels are
// launched synchronously through a device.Driver, and results stay on the
// device until the caller reads them back.
package gpu

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

var (
	_ backend.Backend                                                = (*Backend)(nil)
	_ backend.VectorOps[float64, *Vector[float64]]                   = Kernels[float64]{}
	_ backend.VectorOps[int32, *Vector[int32]]                       = Kernels[int32]{}
	_ backend.MatrixOps[float32, *Vector[float32], *Matrix[float32]] = Kernels[float32]{}
	_ backend.MatrixOps[uint64, *Vector[uint64], *Matrix[uint64]]    = Kernels[uint64]{}
)

// BlockSize is the number of elements one work group reduces before partial
// results are combined.
const BlockSize = 256

// Types lists the scalar types with device kernels.
var Types = dtype.SetOf(dtype.Int32, dtype.Uint32, dtype.Int64, dtype.Uint64, dtype.Float32, dtype.Float64)

var supportedOps = backend.OpsOf(
	backend.OpDot, backend.OpSum, backend.OpSumAxis, backend.OpScale, backend.OpScaleInPlace,
	backend.OpAdd, backend.OpAddInPlace, backend.OpElementwise, backend.OpMax, backend.OpMean,
	backend.OpNorm, backend.OpSetConst, backend.OpElementProd, backend.OpMatrixProd,
	backend.OpCrossEntropy, backend.OpSquaredError, backend.OpTrace, backend.OpSumSymmetric,
	backend.OpMeanAxis,
)

// Direction of a host/device copy.
type Direction uint8

const (
	HostToDevice Direction = iota
	DeviceToHost
)

func (d Direction) String() string {
	if d == DeviceToHost {
		return "d2h"
	}
	return "h2d"
}

// Transfer describes one copy between host and device memory.
type Transfer struct {
	Direction Direction
	Bytes     int
}

// Backend is the device compute backend. It holds one driver context; every
// container it produces keeps its own handle in that context.
type Backend struct {
	name   string
	driver device.Driver
	hook   func(Transfer)
	logger zerolog.Logger
}

type Option func(*Backend)

// WithDriver selects the device context. Without it New opens the emulated
// driver.
func WithDriver(d device.Driver) Option {
	return func(b *Backend) { b.driver = d }
}

// WithTransferHook registers fn to observe every host/device copy. fn runs on
// the calling goroutine.
func WithTransferHook(fn func(Transfer)) Option {
	return func(b *Backend) { b.hook = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

func New(opts ...Option) (*Backend, error) {
	b := &Backend{name: "GPU", logger: log.Logger}
	for _, o := range opts {
		o(b)
	}
	if b.driver == nil {
		d, err := device.Open(device.EmulatedName, device.WithLogger(b.logger))
		if err != nil {
			return nil, fmt.Errorf("gpu backend: %w", err)
		}
		b.driver = d
	}
	if b.driver.Closed() {
		return nil, fmt.Errorf("gpu backend: %w: driver %s is closed", errdefs.ErrBackendUnavailable, b.driver.Name())
	}
	b.logger = b.logger.With().Str("backend", b.name).Str("driver", b.driver.Name()).Logger()
	b.logger.Debug().Msg("GPU backend ready")
	return b, nil
}

func (b *Backend) Name() string       { return b.name }
func (b *Backend) Kind() backend.Kind { return backend.GPU }

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Kind:     backend.GPU,
		Types:    Types,
		Ops:      supportedOps,
		Features: []string{"driver=" + b.driver.Name(), "block=" + strconv.Itoa(BlockSize)},
	}
}

// Driver returns the device context.
func (b *Backend) Driver() device.Driver { return b.driver }

// Outstanding reports the live device handles owned by containers of b.
func (b *Backend) Outstanding() int { return b.driver.Outstanding() }

// Close tears down the device context. It fails while handles are live.
func (b *Backend) Close() error {
	if err := b.driver.Close(); err != nil {
		b.logger.Warn().Err(err).Int("handles", b.driver.Outstanding()).Msg("GPU teardown refused")
		return fmt.Errorf("gpu backend %s: %w", b.name, err)
	}
	b.logger.Debug().Msg("GPU backend closed")
	return nil
}

func (b *Backend) available(op string) error {
	if b == nil || b.driver == nil {
		return fmt.Errorf("gpu %s: %w: no device context", op, errdefs.ErrBackendUnavailable)
	}
	if b.driver.Closed() {
		return fmt.Errorf("gpu %s: %w: device context closed", op, errdefs.ErrBackendUnavailable)
	}
	return nil
}

func (b *Backend) upload(h *device.Handle, src []byte) error {
	if err := b.driver.Write(h, src); err != nil {
		return err
	}
	b.record(Transfer{Direction: HostToDevice, Bytes: len(src)})
	return nil
}

func (b *Backend) download(h *device.Handle, dst []byte) error {
	if err := b.driver.Read(h, dst); err != nil {
		return err
	}
	b.record(Transfer{Direction: DeviceToHost, Bytes: len(dst)})
	return nil
}

func (b *Backend) record(t Transfer) {
	dir := t.Direction.String()
	transfers.WithLabelValues(dir).Inc()
	transferBytes.WithLabelValues(dir).Add(float64(t.Bytes))
	if b.hook != nil {
		b.hook(t)
	}
	if e := b.logger.Trace(); e.Enabled() {
		e.Str("direction", dir).Str("size", humanize.IBytes(uint64(t.Bytes))).Msg("transfer")
	}
}

func (b *Backend) launch(name string, args []*device.Handle, run func(bufs [][]byte)) error {
	if err := b.driver.Launch(device.Kernel{Name: name, Args: args, Run: run}); err != nil {
		return err
	}
	kernelLaunches.WithLabelValues(name).Inc()
	return nil
}
