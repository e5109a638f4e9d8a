package gpu

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/cpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

type transferLog struct {
	h2d, d2h int
}

func (l *transferLog) hook(t Transfer) {
	if t.Direction == HostToDevice {
		l.h2d++
	} else {
		l.d2h++
	}
}

// newBackend returns a backend on a private emulated device. The device must
// have no live handles when the test ends.
func newBackend(t *testing.T, opts ...device.Option) (*Backend, *transferLog) {
	t.Helper()
	l := &transferLog{}
	b, err := New(WithDriver(device.NewEmulated(opts...)), WithTransferHook(l.hook))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.Zero(t, b.Outstanding(), "leaked device handles")
		assert.NoError(t, b.Close())
	})
	return b, l
}

func vec[T float64 | float32 | int32 | int64](t *testing.T, data ...T) *container.Vector[T] {
	t.Helper()
	v, err := container.VectorFrom(data)
	require.NoError(t, err)
	return v
}

func TestTreeReduce(t *testing.T) {
	x := make([]int64, 1000)
	for i := range x {
		x[i] = int64(i + 1)
	}
	assert.Equal(t, int64(500500), treeReduce(x, add[int64]))
	assert.Zero(t, treeReduce([]float64{}, add[float64]))
	assert.Equal(t, 7.0, treeReduce([]float64{7}, add[float64]))
}

func TestDot(t *testing.T) {
	b, l := newBackend(t)
	a := vec(t, 1.0, 1, 1, 1)
	c := vec(t, 2.0, 2, 2, 2)

	got, err := For[float64](b).Dot(a, c)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got)

	// One staging copy per host operand, one read back for the scalar.
	assert.Equal(t, 2, l.h2d)
	assert.Equal(t, 1, l.d2h)
	assert.Equal(t, []float64{1, 1, 1, 1}, a.Data())
	assert.Equal(t, []float64{2, 2, 2, 2}, c.Data())
}

func TestDotMatchesCPU(t *testing.T) {
	const n = 1_000_000
	b, _ := newBackend(t)
	a, err := container.NewVector[float64](n)
	require.NoError(t, err)
	c, err := container.NewVector[float64](n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		a.Set(i, float64(i+1))
		c.Set(i, float64(n-i))
	}

	want, err := cpu.For[float64](cpu.New()).Dot(a, c)
	require.NoError(t, err)
	got, err := For[float64](b).Dot(a, c)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got, 1e-6)
}

func TestStagingCount(t *testing.T) {
	b, l := newBackend(t)
	host := vec(t, 1.0, 2, 3)
	other := vec(t, 4.0, 5, 6)
	before := testutil.ToFloat64(transfers.WithLabelValues("h2d"))

	w, err := Wrap(b, host)
	require.NoError(t, err)
	defer w.Release()
	assert.Equal(t, NotStaged, w.State())
	assert.Nil(t, w.Handle())

	k := For[float64](b)
	got, err := k.Dot(w, other)
	require.NoError(t, err)
	assert.Equal(t, 32.0, got)
	assert.Equal(t, 2, l.h2d)
	assert.Equal(t, ComputedOnDevice, w.State())

	// The wrapped vector keeps its handle; only the host operand is copied again.
	_, err = k.Dot(w, other)
	require.NoError(t, err)
	assert.Equal(t, 3, l.h2d)
	assert.Equal(t, before+3, testutil.ToFloat64(transfers.WithLabelValues("h2d")))
	assert.Equal(t, []float64{1, 2, 3}, host.Data())
}

func TestStateTransitions(t *testing.T) {
	b, _ := newBackend(t)
	v, err := Upload(b, vec(t, 1.0, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, Staged, v.State())
	assert.Equal(t, container.Device, v.Residency())

	k := For[float64](b)
	s, err := k.Scale(v, 2)
	require.NoError(t, err)
	assert.Equal(t, ComputedOnDevice, s.State())

	h, err := s.ToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, h.Data())
	assert.Equal(t, ReadBack, s.State())

	require.NoError(t, k.ScaleInPlace(s, 0.5))
	assert.Equal(t, ComputedOnDevice, s.State())
	h, err = s.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, h.Data())
	assert.True(t, s.Released())

	_, err = k.Sum(s)
	assert.ErrorIs(t, err, errdefs.ErrReleased)

	require.NoError(t, v.Release())
	require.NoError(t, v.Release())
}

func TestVectorOps(t *testing.T) {
	b, _ := newBackend(t)
	k := For[int32](b)
	x := vec[int32](t, 1, 2, 3, 4)
	y := vec[int32](t, 10, 20, 30, 40)

	sum, err := k.Sum(x)
	require.NoError(t, err)
	assert.Equal(t, int32(10), sum)

	added, err := k.Add(x, y, 2, -1)
	require.NoError(t, err)
	h, err := added.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []int32{-8, -16, -24, -32}, h.Data())

	res, err := NewVector[int32](b, 4, 7)
	require.NoError(t, err)
	defer res.Release()
	require.NoError(t, k.AddInPlace(x, y, 1, 1, res))
	h, err = res.ToHost()
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 22, 33, 44}, h.Data())

	short, err := NewVector[int32](b, 2)
	require.NoError(t, err)
	defer short.Release()
	assert.ErrorIs(t, k.AddInPlace(x, y, 1, 1, short), errdefs.ErrDimensionMismatch)

	tests := []struct {
		op   backend.BinaryOp[int32]
		want []int32
	}{
		{backend.Plus[int32](), []int32{11, 22, 33, 44}},
		{backend.Minus[int32](), []int32{-9, -18, -27, -36}},
		{backend.Times[int32](), []int32{10, 40, 90, 160}},
		{backend.Divide[int32](), []int32{0, 0, 0, 0}},
		{backend.Min[int32](), []int32{1, 2, 3, 4}},
		{backend.Max[int32](), []int32{10, 20, 30, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.op.Name, func(t *testing.T) {
			out, err := k.Elementwise(x, y, tt.op)
			require.NoError(t, err)
			h, err := out.MoveToHost()
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Data())
		})
	}

	_, err = k.Elementwise(x, y, backend.Custom("xor", func(a, b int32) int32 { return a ^ b }))
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedOp)
}

func TestDimensionMismatchStagesNothing(t *testing.T) {
	b, l := newBackend(t)
	a, err := container.NewVector[float64](3)
	require.NoError(t, err)
	c, err := container.NewVector[float64](5)
	require.NoError(t, err)

	_, err = For[float64](b).Dot(a, c)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	assert.Zero(t, l.h2d)
}

func TestUnsupportedTypes(t *testing.T) {
	b, _ := newBackend(t)
	a, err := container.NewVector[complex128](2, 1)
	require.NoError(t, err)
	_, err = For[complex128](b).Dot(a, a)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)

	i8, err := container.NewVector[int8](2, 1)
	require.NoError(t, err)
	_, err = For[int8](b).Sum(i8)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)

	_, err = Wrap(b, i8)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
}

func TestBackendUnavailable(t *testing.T) {
	a := vec(t, 1.0, 2)
	_, err := For[float64](nil).Dot(a, a)
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)

	d := device.NewEmulated()
	b, err := New(WithDriver(d))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	_, err = For[float64](b).Dot(a, a)
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)

	_, err = New(WithDriver(d))
	assert.ErrorIs(t, err, errdefs.ErrBackendUnavailable)
}

func TestCloseWithLiveContainers(t *testing.T) {
	b, err := New(WithDriver(device.NewEmulated()))
	require.NoError(t, err)
	v, err := Upload(b, vec(t, 1.0))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Close(), device.ErrHandlesOutstanding)
	require.NoError(t, v.Release())
	require.NoError(t, b.Close())
}

func TestMixedDevices(t *testing.T) {
	b1, _ := newBackend(t)
	b2, _ := newBackend(t)
	v, err := Upload(b1, vec(t, 1.0, 2))
	require.NoError(t, err)
	defer v.Release()

	_, err = For[float64](b2).Sum(v)
	assert.ErrorIs(t, err, errdefs.ErrMixedBackend)
}

func TestAllocationFailureReleasesEverything(t *testing.T) {
	// Room for both staged operands but not for the result.
	b, _ := newBackend(t, device.WithCapacity(64))
	a := vec(t, 1.0, 2, 3, 4)
	c := vec(t, 5.0, 6, 7, 8)

	_, err := For[float64](b).Add(a, c, 1, 1)
	assert.ErrorIs(t, err, errdefs.ErrAllocation)
	assert.Zero(t, b.Outstanding())
}

func TestMatrixOpsMatchCPU(t *testing.T) {
	b, _ := newBackend(t)
	ck := cpu.For[float64](cpu.New())
	gk := For[float64](b)

	a, err := container.MatrixFrom(2, 3, []float64{1, 4, 2, 5, 3, 6})
	require.NoError(t, err)
	bm, err := container.MatrixFrom(3, 2, []float64{7, 9, 11, 8, 10, 12})
	require.NoError(t, err)

	prod, err := gk.MatrixProd(a, bm, false, false)
	require.NoError(t, err)
	h, err := prod.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{58, 139, 64, 154}, h.Data())

	c32, err := container.MatrixFrom(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	for _, tc := range []struct {
		name           string
		x, y           *container.Matrix[float64]
		transA, transB bool
	}{
		{"none", a, bm, false, false},
		{"both", bm, a, true, true},
		{"a only", bm, c32, true, false},
		{"b only", a, a, false, true},
	} {
		want, err := ck.MatrixProd(tc.x, tc.y, tc.transA, tc.transB)
		require.NoError(t, err, tc.name)
		got, err := gk.MatrixProd(tc.x, tc.y, tc.transA, tc.transB)
		require.NoError(t, err, tc.name)
		gh, err := got.MoveToHost()
		require.NoError(t, err)
		assert.Equal(t, want.Data(), gh.Data(), tc.name)
		assert.Zero(t, b.Outstanding(), tc.name)
	}

	sq, err := container.MatrixFrom(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	for _, noDiag := range []bool{false, true} {
		want, err := ck.MatrixSum(sq, noDiag)
		require.NoError(t, err)
		got, err := gk.MatrixSum(sq, noDiag)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		for _, axis := range []backend.Axis{backend.Cols, backend.Rows} {
			want, err := ck.SumAxis(sq, axis, noDiag)
			require.NoError(t, err)
			got, err := gk.SumAxis(sq, axis, noDiag)
			require.NoError(t, err)
			gh, err := got.MoveToHost()
			require.NoError(t, err)
			assert.Equal(t, want.Data(), gh.Data(), "axis %s noDiag %v", axis, noDiag)
		}
	}

	scaled, err := gk.MatrixScale(sq, 3)
	require.NoError(t, err)
	sh, err := scaled.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6, 9, 12}, sh.Data())

	sum, err := gk.MatrixAdd(sq, sq, 1, 2)
	require.NoError(t, err)
	sh, err = sum.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6, 9, 12}, sh.Data())

	ep, err := gk.ElementProd(sq, sq)
	require.NoError(t, err)
	sh, err = ep.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 9, 16}, sh.Data())

	_, err = gk.MatrixAdd(sq, a, 1, 1)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	_, err = gk.MatrixProd(a, a, false, false)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	assert.Zero(t, b.Outstanding())
}

func TestBlockReductionsMatchCPU(t *testing.T) {
	b, _ := newBackend(t)
	cb := cpu.New()
	ck := cpu.For[float64](cb)
	gk := For[float64](b)

	m, err := container.MatrixFrom(3, 3, []float64{1, 2, 3, 2, 4, 5, 3, 5, 6})
	require.NoError(t, err)
	wide, err := container.MatrixFrom(2, 3, []float64{1, 4, 2, 5, 3, 6})
	require.NoError(t, err)
	dm, err := UploadMatrix(b, m)
	require.NoError(t, err)
	defer func() { assert.NoError(t, dm.Release()) }()
	inner, err := container.NewBlock[float64](m, 1, 1, 2, 2)
	require.NoError(t, err)
	onDevice, err := container.NewBlock[float64](dm, 1, 0, 2, 2)
	require.NoError(t, err)
	onHost, err := container.NewBlock[float64](m, 1, 0, 2, 2)
	require.NoError(t, err)

	for _, mat := range []*container.Matrix[float64]{m, wide} {
		want, err := ck.Trace(mat)
		require.NoError(t, err)
		got, err := gk.Trace(mat)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		wmax, err := cpu.MatrixMax[float64](cb, mat)
		require.NoError(t, err)
		gmax, err := MatrixMax[float64](b, mat)
		require.NoError(t, err)
		assert.Equal(t, wmax, gmax)

		wmean, err := cpu.MatrixMean[float64](cb, mat)
		require.NoError(t, err)
		gmean, err := MatrixMean[float64](b, mat)
		require.NoError(t, err)
		assert.Equal(t, wmean, gmean)
	}

	for _, noDiag := range []bool{false, true} {
		want, err := ck.SumSymmetric(m, noDiag)
		require.NoError(t, err)
		got, err := gk.SumSymmetric(dm, noDiag)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		want, err = ck.BlockSumSymmetric(inner, noDiag)
		require.NoError(t, err)
		got, err = gk.BlockSumSymmetric(inner, noDiag)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		want, err = ck.BlockSum(onHost, noDiag)
		require.NoError(t, err)
		got, err = gk.BlockSum(onDevice, noDiag)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		for _, axis := range []backend.Axis{backend.Cols, backend.Rows} {
			want, err := ck.BlockSumAxis(onHost, axis, noDiag)
			require.NoError(t, err)
			got, err := gk.BlockSumAxis(onDevice, axis, noDiag)
			require.NoError(t, err)
			gh, err := got.MoveToHost()
			require.NoError(t, err)
			assert.Equal(t, want.Data(), gh.Data(), "axis %s noDiag %v", axis, noDiag)

			wmean, err := cpu.MeanAxis[float64](cb, wide, axis, noDiag)
			require.NoError(t, err)
			gmean, err := MeanAxis[float64](b, wide, axis, noDiag)
			require.NoError(t, err)
			assert.Equal(t, wmean.Data(), gmean.Data(), "axis %s noDiag %v", axis, noDiag)
		}
	}

	_, err = gk.SumSymmetric(wide, false)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	stale := container.Block[float64]{Of: wide, Row: 1, Rows: 2, Cols: 2}
	_, err = gk.BlockSum(stale, false)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	one, err := container.MatrixFrom(1, 1, []float64{3})
	require.NoError(t, err)
	_, err = MeanAxis[float64](b, one, backend.Rows, true)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	assert.Equal(t, 1, b.Outstanding(), "only the uploaded matrix is live")
}

func TestKernelFaultReleasesResults(t *testing.T) {
	b, _ := newBackend(t)
	k := For[float64](b)
	x := vec(t, 1.0, 2, 3)

	_, err := k.Elementwise(x, x, backend.BinaryOp[float64]{
		Name: backend.NameAdd,
		Fn:   func(float64, float64) float64 { panic("bad lane") },
	})
	require.ErrorIs(t, err, device.ErrKernelFault)
	assert.Zero(t, b.Outstanding())
}

func TestReductions(t *testing.T) {
	b, _ := newBackend(t)
	x := vec(t, 3.0, -1, 4, 1)

	m, err := Max[float64](b, x)
	require.NoError(t, err)
	assert.Equal(t, 4.0, m)

	mean, err := Mean[int64](b, vec[int64](t, 1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, 2.5, mean)

	n, err := Norm[float64](b, vec(t, 3.0, 4))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, n, 1e-12)

	v, err := NewVector[float32](b, 3)
	require.NoError(t, err)
	require.NoError(t, SetConst(b, v, 1.5))
	h, err := v.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 1.5, 1.5}, h.Data())

	p, err := container.MatrixFrom(1, 2, []float64{0.25, 0.75})
	require.NoError(t, err)
	q, err := container.MatrixFrom(1, 2, []float64{0.5, 0.5})
	require.NoError(t, err)
	ce, err := CrossEntropy[float64](b, p, q)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, ce, 1e-12)

	se, err := SquaredError[float64](b, p, q)
	require.NoError(t, err)
	assert.InDelta(t, 0.0625, se, 1e-12)
}

func TestMeanAccumulatesInElementType(t *testing.T) {
	b, _ := newBackend(t)
	x := vec[int32](t, 2e9, 2e9)

	want, err := cpu.Mean[int32](cpu.New(), x)
	require.NoError(t, err)
	got, err := Mean[int32](b, x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, -1.47483648e+08, got)
}

func TestEmptyOperandsMatchCPU(t *testing.T) {
	b, _ := newBackend(t)
	ck := cpu.For[float64](cpu.New())
	gk := For[float64](b)
	empty, err := container.View([]float64{}, 0)
	require.NoError(t, err)

	want, err := ck.Dot(empty, empty)
	require.NoError(t, err)
	got, err := gk.Dot(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want, err = ck.Sum(empty)
	require.NoError(t, err)
	got, err = gk.Sum(empty)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	w, err := Upload(b, empty)
	require.NoError(t, err)
	got, err = gk.Sum(w)
	require.NoError(t, err)
	assert.Zero(t, got)
	require.NoError(t, w.Release())

	_, err = cpu.Mean[float64](cpu.New(), empty)
	require.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	_, err = Mean[float64](b, empty)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	_, err = Max[float64](b, empty)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	assert.Zero(t, b.Outstanding())
}

func TestCapabilities(t *testing.T) {
	b, _ := newBackend(t)
	caps := b.Capabilities()
	assert.Equal(t, backend.GPU, caps.Kind)
	assert.True(t, caps.Supports(backend.OpDot, Types.List()[0]))
	assert.False(t, caps.Supports(backend.OpCholesky, Types.List()[0]))
	assert.Contains(t, caps.Features, "driver=emulated")
}

func BenchmarkDot(b *testing.B) {
	const n = 1 << 16
	g, err := New(WithDriver(device.NewEmulated()))
	require.NoError(b, err)
	x, err := container.NewVector[float32](n, 1)
	require.NoError(b, err)
	w, err := Upload(g, x)
	require.NoError(b, err)
	defer w.Release()
	k := For[float32](g)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := k.Dot(w, w); err != nil {
			b.Fatal(err)
		}
	}
}
