package linalg

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

func TestConfigGPUEnabled(t *testing.T) {
	for name, want := range map[string]bool{
		"":         false,
		"none":     false,
		" NONE ":   false,
		"emulated": true,
		"Emulated": true,
		"cuda":     true,
	} {
		assert.Equal(t, want, Config{GPU: name}.GPUEnabled(), "GPU=%q", name)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("cpu only", func(t *testing.T) {
		d, err := NewFromConfig(Config{GPU: "none", Workers: 2})
		require.NoError(t, err)
		assert.Nil(t, d.GPU())
		assert.Len(t, d.Backends(), 1)
	})

	t.Run("emulated with capacity", func(t *testing.T) {
		d, err := NewFromConfig(Config{GPU: "emulated", DeviceMemory: "1KB", DeviceConcurrency: 2},
			WithLogger(zerolog.Nop()))
		require.NoError(t, err)
		require.NotNil(t, d.GPU())
		assert.Equal(t, device.EmulatedName, d.GPU().Driver().Name())
		require.NotNil(t, d.sem)

		// 1KB holds 125 float64 values; 200 do not fit.
		host := filled(t, 200, 1)
		_, err = Sum[float64](context.Background(), d, mustWrap(t, d.GPU(), 200))
		assert.ErrorIs(t, err, errdefs.ErrAllocation)
		_, err = gpu.For[float64](d.GPU()).Sum(host)
		assert.ErrorIs(t, err, errdefs.ErrAllocation)
		assert.Zero(t, d.GPU().Outstanding())
		require.NoError(t, d.Teardown())
	})

	t.Run("bad memory size", func(t *testing.T) {
		_, err := NewFromConfig(Config{GPU: "emulated", DeviceMemory: "lots"})
		assert.Error(t, err)
	})

	t.Run("driver not compiled in", func(t *testing.T) {
		_, err := NewFromConfig(Config{GPU: "cuda"})
		assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewFromConfig(Config{GPU: "opencl"})
		assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)
	})

	t.Run("options override config", func(t *testing.T) {
		g := newGPU(t)
		d, err := NewFromConfig(Config{}, WithGPUBackend(g))
		require.NoError(t, err)
		assert.Same(t, g, d.GPU())
	})
}

func mustWrap(t *testing.T, g *gpu.Backend, n int) *gpu.Vector[float64] {
	t.Helper()
	v, err := gpu.Wrap(g, filled(t, n, 1))
	require.NoError(t, err)
	return v
}
