package linalg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

func TestDispatchVectorOps(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := container.VectorFrom([]int32{1, 5, 3})
	require.NoError(t, err)
	b, err := container.VectorFrom([]int32{2, 2, 2})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpDot, a, b)
	require.NoError(t, err)
	assert.Equal(t, int32(18), res)

	res, err = d.Dispatch(ctx, backend.OpMax, a)
	require.NoError(t, err)
	assert.Equal(t, int32(5), res)

	res, err = d.Dispatch(ctx, backend.OpMean, a)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res)

	res, err = d.Dispatch(ctx, backend.OpElementwise, a, b, backend.Min[int32]())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 2}, res.(*container.Vector[int32]).Data())

	res, err = d.Dispatch(ctx, backend.OpAdd, a, b, int32(1), int32(-1))
	require.NoError(t, err)
	assert.Equal(t, []int32{-1, 3, 1}, res.(*container.Vector[int32]).Data())

	_, err = d.Dispatch(ctx, backend.OpAddInPlace, a, b, int32(2), int32(1), b)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 12, 8}, b.Data())

	_, err = d.Dispatch(ctx, backend.OpSetConst, a, int32(7))
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 7, 7}, a.Data())

	_, err = d.Dispatch(ctx, backend.OpRangeFill, a, int32(10))
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 11, 12}, a.Data())

	// Norm is defined for floating point only.
	_, err = d.Dispatch(ctx, backend.OpNorm, a)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
}

func TestDispatchFloatOps(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := container.VectorFrom([]float64{3, 4})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpNorm, a)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res, 1e-12)

	res, err = d.Dispatch(ctx, backend.OpScale, a, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 8}, res.(*container.Vector[float64]).Data())

	_, err = d.Dispatch(ctx, backend.OpScaleInPlace, a, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2}, a.Data())

	res, err = d.Dispatch(ctx, backend.OpExponent, a)
	require.NoError(t, err)
	assert.Equal(t, 2, res.(*container.Vector[float64]).Len())
}

func TestDispatchComplex(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := container.VectorFrom([]complex128{1 + 1i, 2})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpSum, a)
	require.NoError(t, err)
	assert.Equal(t, 3+1i, res)

	res, err = d.Dispatch(ctx, backend.OpMean, a)
	require.NoError(t, err)
	assert.Equal(t, 1.5+0.5i, res)

	// Ordering is not defined for complex values.
	_, err = d.Dispatch(ctx, backend.OpMax, a)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
}

func TestDispatchMatrixReductions(t *testing.T) {
	ctx := context.Background()
	d := New()
	// Column-major [[1 2 3] [2 4 5] [3 5 6]].
	m, err := container.MatrixFrom(3, 3, []float64{1, 2, 3, 2, 4, 5, 3, 5, 6})
	require.NoError(t, err)
	blk, err := container.NewBlock[float64](m, 1, 1, 2, 2)
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpTrace, m)
	require.NoError(t, err)
	assert.Equal(t, 11.0, res)

	res, err = d.Dispatch(ctx, backend.OpSumSymmetric, m, true)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res)

	res, err = d.Dispatch(ctx, backend.OpSumSymmetric, blk)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res)

	res, err = d.Dispatch(ctx, backend.OpSum, blk, true)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res)

	res, err = d.Dispatch(ctx, backend.OpSumAxis, blk, backend.Cols)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 11}, res.(*container.Vector[float64]).Data())

	res, err = d.Dispatch(ctx, backend.OpMax, m)
	require.NoError(t, err)
	assert.Equal(t, 6.0, res)

	res, err = d.Dispatch(ctx, backend.OpMean, m)
	require.NoError(t, err)
	assert.InDelta(t, 31.0/9, res, 1e-12)

	res, err = d.Dispatch(ctx, backend.OpMeanAxis, m, backend.Rows, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 3.5, 4}, res.(*container.Vector[float64]).Data())

	_, err = d.Dispatch(ctx, backend.OpMeanAxis, m)
	assert.ErrorIs(t, err, errdefs.ErrBadOperand)
}

func TestDispatchMatrixOps(t *testing.T) {
	ctx := context.Background()
	d := New()
	// Column-major [[4 2] [2 3]].
	m, err := container.MatrixFrom(2, 2, []float64{4, 2, 2, 3})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpSum, m)
	require.NoError(t, err)
	assert.Equal(t, 11.0, res)

	res, err = d.Dispatch(ctx, backend.OpSum, m, true)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res)

	res, err = d.Dispatch(ctx, backend.OpSumAxis, m, backend.Rows)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 5}, res.(*container.Vector[float64]).Data())

	res, err = d.Dispatch(ctx, backend.OpMatrixProd, m, m)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 14, 14, 13}, res.(*container.Matrix[float64]).Data())

	res, err = d.Dispatch(ctx, backend.OpScale, m, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 4, 4, 6}, res.(*container.Matrix[float64]).Data())

	factor, err := d.Dispatch(ctx, backend.OpCholesky, m)
	require.NoError(t, err)
	l := factor.(*container.Matrix[float64])
	assert.InDelta(t, 2.0, l.At(0, 0), 1e-12)

	rhs, err := container.VectorFrom([]float64{6, 5})
	require.NoError(t, err)
	x, err := d.Dispatch(ctx, backend.OpCholeskySolve, l, rhs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, x.(*container.Vector[float64]).Data(), 1e-12)

	eig, err := d.Dispatch(ctx, backend.OpEigenSymmetric, m)
	require.NoError(t, err)
	vals := eig.(Eigen[float64]).Values.Data()
	require.Len(t, vals, 2)
	assert.InDelta(t, 7.0, vals[0]+vals[1], 1e-9)

	id, err := container.NewMatrix[float64](2, 2)
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, backend.OpIdentity, id)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 1}, id.Data())
}

func TestDispatchBadOperands(t *testing.T) {
	ctx := context.Background()
	d := New()
	a := filled(t, 2, 1)
	m, err := container.NewMatrix[float64](2, 2, 1)
	require.NoError(t, err)

	cases := map[string]struct {
		op       backend.Op
		operands []any
	}{
		"no operands":        {backend.OpSum, nil},
		"not a container":    {backend.OpSum, []any{1.0}},
		"missing operand":    {backend.OpDot, []any{a}},
		"wrong scalar type":  {backend.OpScale, []any{a, float32(2)}},
		"wrong element type": {backend.OpDot, []any{a, filledInt(t)}},
		"missing result":     {backend.OpAddInPlace, []any{a, a, 1.0, 1.0}},
		"bad flag":           {backend.OpCholesky, []any{m, "lower"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch(ctx, tc.op, tc.operands...)
			assert.ErrorIs(t, err, errdefs.ErrBadOperand)
		})
	}
}

func TestDispatchDeviceOperands(t *testing.T) {
	ctx := context.Background()
	g := newGPU(t)
	d := New(WithGPUBackend(g))
	a, err := gpu.Upload(g, filled(t, 4, 2))
	require.NoError(t, err)
	b, err := gpu.Upload(g, filled(t, 4, 3))
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, backend.OpDot, a, b)
	require.NoError(t, err)
	assert.Equal(t, 24.0, res)

	res, err = d.Dispatch(ctx, backend.OpAdd, a, b, 1.0, 1.0)
	require.NoError(t, err)
	sum := res.(*gpu.Vector[float64])
	host, err := sum.MoveToHost()
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5, 5, 5}, host.Data())

	_, err = d.Dispatch(ctx, backend.OpRangeFill, a, 0.0)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedOp)

	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	require.NoError(t, d.Teardown())
}

func filledInt(t *testing.T) *container.Vector[int64] {
	t.Helper()
	x, err := container.NewVector[int64](2, 1)
	require.NoError(t, err)
	return x
}
