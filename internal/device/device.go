// Package device manages device memory for the GPU backend: allocation,
// host/device transfers and synchronous kernel launches, behind a Driver
// interface. Drivers are looked up by name so the active GPU implementation
// can be chosen from configuration.
package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"

	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// ErrHandlesOutstanding is returned by Close while allocations are still live.
var ErrHandlesOutstanding = errors.New("device handles outstanding")

// ErrKernelFault is returned by Launch when a kernel body faults.
var ErrKernelFault = errors.New("kernel fault")

// Handle is one block of device memory. It is owned by exactly one GPU
// container and must be freed through its driver.
type Handle struct {
	id     uint64
	size   int
	driver Driver
	freed  atomic.Bool
}

func (h *Handle) ID() uint64     { return h.id }
func (h *Handle) Size() int      { return h.size }
func (h *Handle) Driver() Driver { return h.driver }
func (h *Handle) Freed() bool    { return h.freed.Load() }
func (h *Handle) Free() error    { return h.driver.Free(h) }
func (h *Handle) String() string { return fmt.Sprintf("handle#%d(%dB@%s)", h.id, h.size, h.driver.Name()) }

// Kernel is a compute launch. Name identifies the device program; Run is the
// reference body, invoked by drivers that execute kernels on host-visible
// memory. Buffers are passed to Run in the order of Args.
type Kernel struct {
	Name string
	Args []*Handle
	Run  func(bufs [][]byte)
}

// Driver is a device context.
type Driver interface {
	Name() string
	Alloc(size int) (*Handle, error)
	// Free releases h. Freeing after Close logs and returns nil.
	Free(h *Handle) error
	Write(h *Handle, src []byte) error
	Read(h *Handle, dst []byte) error
	// Launch runs k and blocks until it has completed.
	Launch(k Kernel) error
	Synchronize() error
	// Outstanding reports the number of live handles.
	Outstanding() int
	// Close tears the context down. It fails with ErrHandlesOutstanding
	// while handles are live.
	Close() error
	Closed() bool
}

type options struct {
	capacity int64
	logger   zerolog.Logger
}

type Option func(*options)

// WithCapacity bounds the device memory in bytes. Zero means unbounded.
func WithCapacity(bytes int64) Option {
	return func(o *options) { o.capacity = bytes }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: log.Logger}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Factory constructs a driver.
type Factory func(opts ...Option) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Canonical returns the registry key for a driver name: surrounding space is
// dropped and case is folded, so "Emulated" and " EMULATED " are one driver.
func Canonical(name string) string {
	// A Caser keeps state; one per call.
	return cases.Fold().String(strings.TrimSpace(name))
}

// Register makes a driver available under name. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[Canonical(name)] = f
}

// Open constructs the driver registered under name.
func Open(name string, opts ...Option) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[Canonical(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device %q: %w: no such driver (have %v)", name, errdefs.ErrBackendUnavailable, Drivers())
	}
	d, err := f(opts...)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", name, err)
	}
	return d, nil
}

// Drivers lists the registered driver names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
