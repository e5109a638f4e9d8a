package device

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

func TestRegistry(t *testing.T) {
	names := Drivers()
	assert.Contains(t, names, EmulatedName)
	assert.Contains(t, names, CUDAName)

	d, err := Open(EmulatedName)
	require.NoError(t, err)
	assert.Equal(t, EmulatedName, d.Name())
	require.NoError(t, d.Close())

	_, err = Open(CUDAName)
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)

	_, err = Open("opencl")
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)

	d, err = Open(" Emulated ")
	require.NoError(t, err)
	assert.Equal(t, EmulatedName, d.Name())
	require.NoError(t, d.Close())
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "emulated", Canonical("  EMULATED\t"))
	assert.Equal(t, "cuda", Canonical("Cuda"))
	assert.Equal(t, "", Canonical("   "))
}

func TestEmulated_WriteReadRoundTrip(t *testing.T) {
	e := NewEmulated()
	h, err := e.Alloc(24)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Free()) }()

	src := make([]byte, 24)
	for i, v := range []float64{1.5, -2, math.Pi} {
		binary.LittleEndian.PutUint64(src[i*8:], math.Float64bits(v))
	}
	require.NoError(t, e.Write(h, src))

	// The caller's buffer is not device memory.
	src[0] = 0xff
	dst := make([]byte, 24)
	require.NoError(t, e.Read(h, dst))
	assert.Equal(t, 1.5, math.Float64frombits(binary.LittleEndian.Uint64(dst)))
	assert.Equal(t, math.Pi, math.Float64frombits(binary.LittleEndian.Uint64(dst[16:])))

	assert.ErrorIs(t, e.Write(h, make([]byte, 32)), errdefs.ErrDimensionMismatch)
}

func TestEmulated_Launch(t *testing.T) {
	e := NewEmulated()
	in, err := e.Alloc(4)
	require.NoError(t, err)
	out, err := e.Alloc(4)
	require.NoError(t, err)
	require.NoError(t, e.Write(in, []byte{1, 2, 3, 4}))

	require.NoError(t, e.Launch(Kernel{
		Name: "double",
		Args: []*Handle{in, out},
		Run: func(bufs [][]byte) {
			for i, b := range bufs[0] {
				bufs[1][i] = 2 * b
			}
		},
	}))
	got := make([]byte, 4)
	require.NoError(t, e.Read(out, got))
	assert.Equal(t, []byte{2, 4, 6, 8}, got)

	assert.ErrorIs(t, e.Launch(Kernel{Name: "empty", Args: []*Handle{in}}), errdefs.ErrUnsupportedOp)

	require.NoError(t, in.Free())
	err = e.Launch(Kernel{Name: "stale", Args: []*Handle{in}, Run: func([][]byte) {}})
	assert.ErrorIs(t, err, errdefs.ErrReleased)
	require.NoError(t, out.Free())
}

func TestEmulated_LaunchFaultIsAnError(t *testing.T) {
	e := NewEmulated()
	h, err := e.Alloc(8)
	require.NoError(t, err)

	err = e.Launch(Kernel{Name: "oob", Args: []*Handle{h}, Run: func(bufs [][]byte) {
		_ = bufs[0][len(bufs[0])+1]
	}})
	require.ErrorIs(t, err, ErrKernelFault)
	assert.Contains(t, err.Error(), "oob")

	// The device stays usable after a fault.
	require.NoError(t, e.Write(h, make([]byte, 8)))
	require.NoError(t, h.Free())
	assert.Zero(t, e.Outstanding())
}

func TestEmulated_ForeignHandle(t *testing.T) {
	a, b := NewEmulated(), NewEmulated()
	h, err := a.Alloc(8)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Write(h, make([]byte, 8)), errdefs.ErrMixedBackend)
	require.NoError(t, h.Free())
}

func TestEmulated_Capacity(t *testing.T) {
	e := NewEmulated(WithCapacity(64))
	before := testutil.ToFloat64(allocFailures.WithLabelValues(EmulatedName))

	h, err := e.Alloc(48)
	require.NoError(t, err)
	_, err = e.Alloc(32)
	assert.ErrorIs(t, err, errdefs.ErrAllocation)
	assert.Equal(t, before+1, testutil.ToFloat64(allocFailures.WithLabelValues(EmulatedName)))
	assert.Equal(t, int64(48), e.Used())

	require.NoError(t, h.Free())
	h, err = e.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, h.Free())

	_, err = e.Alloc(0)
	assert.ErrorIs(t, err, errdefs.ErrAllocation)
}

func TestEmulated_FreeIsIdempotent(t *testing.T) {
	e := NewEmulated()
	h, err := e.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Outstanding())
	require.NoError(t, h.Free())
	require.NoError(t, h.Free())
	assert.True(t, h.Freed())
	assert.Equal(t, 0, e.Outstanding())
	assert.Zero(t, e.Used())
}

func TestEmulated_CloseWithOutstandingHandles(t *testing.T) {
	e := NewEmulated()
	h, err := e.Alloc(16)
	require.NoError(t, err)

	err = e.Close()
	assert.ErrorIs(t, err, ErrHandlesOutstanding)
	assert.False(t, e.Closed())

	require.NoError(t, h.Free())
	require.NoError(t, e.Close())
	assert.True(t, e.Closed())
	require.NoError(t, e.Close())

	_, err = e.Alloc(8)
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)
	assert.ErrorIs(t, e.Synchronize(), errdefs.ErrBackendUnavailable)
}

func TestEmulated_FreeAfterCloseIsIgnored(t *testing.T) {
	e := NewEmulated()
	h := &Handle{id: 99, size: 8, driver: e}
	require.NoError(t, e.Close())
	assert.NoError(t, h.Free())
}
