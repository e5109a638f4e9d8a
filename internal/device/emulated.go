package device

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// EmulatedName is the registry name of the emulated driver.
const EmulatedName = "emulated"

func init() {
	Register(EmulatedName, func(opts ...Option) (Driver, error) {
		return NewEmulated(opts...), nil
	})
}

var _ Driver = (*Emulated)(nil)

// Emulated is a driver whose device memory is a private host arena. Data only
// reaches it through Write and leaves through Read, so staging and read back
// behave as on a discrete device. Kernels run synchronously on the caller's
// goroutine.
type Emulated struct {
	mu       sync.RWMutex
	buffers  map[uint64][]uint64
	nextID   uint64
	used     int64
	capacity int64
	closed   bool
	logger   zerolog.Logger
}

func NewEmulated(opts ...Option) *Emulated {
	o := buildOptions(opts)
	e := &Emulated{
		buffers:  make(map[uint64][]uint64),
		capacity: o.capacity,
		logger:   o.logger.With().Str("driver", EmulatedName).Logger(),
	}
	limit := "unbounded"
	if e.capacity > 0 {
		limit = humanize.IBytes(uint64(e.capacity))
	}
	e.logger.Debug().Str("capacity", limit).Msg("Emulated device initialised")
	return e
}

func (e *Emulated) Name() string { return EmulatedName }

func (e *Emulated) Alloc(size int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("emulated alloc %d bytes: %w: size must be positive", size, errdefs.ErrAllocation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("emulated alloc: %w: device closed", errdefs.ErrBackendUnavailable)
	}
	if e.capacity > 0 && e.used+int64(size) > e.capacity {
		allocFailures.WithLabelValues(EmulatedName).Inc()
		return nil, fmt.Errorf("emulated alloc %s: %w: %s of %s in use", humanize.IBytes(uint64(size)),
			errdefs.ErrAllocation, humanize.IBytes(uint64(e.used)), humanize.IBytes(uint64(e.capacity)))
	}
	// Backed by uint64 words so every element type is aligned.
	words := (size + 7) / 8
	e.nextID++
	e.buffers[e.nextID] = make([]uint64, words)
	e.used += int64(size)

	allocBytes.WithLabelValues(EmulatedName).Add(float64(size))
	liveHandles.WithLabelValues(EmulatedName).Inc()
	return &Handle{id: e.nextID, size: size, driver: e}, nil
}

func (e *Emulated) Free(h *Handle) error {
	if h == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.logger.Warn().Stringer("handle", h).Msg("Free after device teardown ignored")
		return nil
	}
	if h.freed.Swap(true) {
		return nil
	}
	if _, ok := e.buffers[h.id]; !ok {
		return fmt.Errorf("emulated free %s: unknown handle", h)
	}
	delete(e.buffers, h.id)
	e.used -= int64(h.size)
	allocBytes.WithLabelValues(EmulatedName).Sub(float64(h.size))
	liveHandles.WithLabelValues(EmulatedName).Dec()
	return nil
}

// view returns the byte view of a live handle. Callers hold e.mu.
func (e *Emulated) view(h *Handle) ([]byte, error) {
	if e.closed {
		return nil, fmt.Errorf("emulated: %w: device closed", errdefs.ErrBackendUnavailable)
	}
	if h == nil || h.driver != Driver(e) {
		return nil, fmt.Errorf("emulated: %w: handle belongs to another device", errdefs.ErrMixedBackend)
	}
	words, ok := e.buffers[h.id]
	if !ok || h.Freed() {
		return nil, fmt.Errorf("emulated %s: %w", h, errdefs.ErrReleased)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), h.size), nil
}

func (e *Emulated) Write(h *Handle, src []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	buf, err := e.view(h)
	if err != nil {
		return err
	}
	if len(src) > len(buf) {
		return fmt.Errorf("emulated write: %w: %d bytes into %d", errdefs.ErrDimensionMismatch, len(src), len(buf))
	}
	copy(buf, src)
	return nil
}

func (e *Emulated) Read(h *Handle, dst []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	buf, err := e.view(h)
	if err != nil {
		return err
	}
	if len(dst) > len(buf) {
		return fmt.Errorf("emulated read: %w: %d bytes from %d", errdefs.ErrDimensionMismatch, len(dst), len(buf))
	}
	copy(dst, buf)
	return nil
}

func (e *Emulated) Launch(k Kernel) (err error) {
	if k.Run == nil {
		return fmt.Errorf("emulated launch %q: %w: kernel has no body", k.Name, errdefs.ErrUnsupportedOp)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	bufs := make([][]byte, len(k.Args))
	for i, h := range k.Args {
		b, err := e.view(h)
		if err != nil {
			return fmt.Errorf("emulated launch %q arg %d: %w", k.Name, i, err)
		}
		bufs[i] = b
	}
	defer func() {
		if r := recover(); r != nil {
			kernelFaults.WithLabelValues(EmulatedName).Inc()
			err = fmt.Errorf("emulated launch %q: %w: %v", k.Name, ErrKernelFault, r)
		}
	}()
	k.Run(bufs)
	return nil
}

// Synchronize is a no-op: launches complete before Launch returns.
func (e *Emulated) Synchronize() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("emulated: %w: device closed", errdefs.ErrBackendUnavailable)
	}
	return nil
}

func (e *Emulated) Outstanding() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.buffers)
}

// Used reports the bytes currently allocated.
func (e *Emulated) Used() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.used
}

func (e *Emulated) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if n := len(e.buffers); n > 0 {
		return fmt.Errorf("emulated close: %w: %d live (%s)", ErrHandlesOutstanding, n, humanize.IBytes(uint64(e.used)))
	}
	e.closed = true
	e.logger.Debug().Msg("Emulated device closed")
	return nil
}

func (e *Emulated) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
