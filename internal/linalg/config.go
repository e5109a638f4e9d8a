package linalg

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/device"
)

// Config selects the backends of a Dispatcher.
type Config struct {
	// GPU names the device driver ("emulated", "cuda"). Empty or "none"
	// leaves the dispatcher CPU only.
	GPU string
	// DeviceMemory caps device allocations, e.g. "512MB". Empty is unbounded.
	DeviceMemory string
	// DeviceConcurrency bounds concurrent GPU operations. Zero is unbounded.
	DeviceConcurrency int
	// Workers bounds CPU goroutines for elementwise kernels. Zero uses every CPU.
	Workers int
}

// GPUEnabled reports whether cfg asks for a GPU backend.
func (cfg Config) GPUEnabled() bool {
	name := device.Canonical(cfg.GPU)
	return name != "" && name != "none"
}

// NewFromConfig builds a dispatcher from cfg. opts are applied after the
// configured backends and may override them.
func NewFromConfig(cfg Config, opts ...Option) (*Dispatcher, error) {
	// Resolve the logger the caller asked for before building backends.
	scratch := Dispatcher{logger: log.Logger}
	for _, o := range opts {
		o(&scratch)
	}
	logger := scratch.logger

	cpuOpts := []cpu.Option{cpu.WithLogger(logger)}
	if cfg.Workers > 0 {
		cpuOpts = append(cpuOpts, cpu.WithWorkers(cfg.Workers))
	}
	base := []Option{WithCPUBackend(cpu.New(cpuOpts...)), WithDeviceConcurrency(cfg.DeviceConcurrency)}

	if cfg.GPUEnabled() {
		devOpts := []device.Option{device.WithLogger(logger)}
		if cfg.DeviceMemory != "" {
			n, err := humanize.ParseBytes(cfg.DeviceMemory)
			if err != nil {
				return nil, fmt.Errorf("config: device memory %q: %w", cfg.DeviceMemory, err)
			}
			devOpts = append(devOpts, device.WithCapacity(int64(n)))
		}
		drv, err := device.Open(cfg.GPU, devOpts...)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		g, err := gpu.New(gpu.WithDriver(drv), gpu.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		base = append(base, WithGPUBackend(g))
		logger.Info().Str("driver", drv.Name()).Str("device_memory", cfg.DeviceMemory).Msg("GPU backend configured")
	}
	return New(append(base, opts...)...), nil
}
