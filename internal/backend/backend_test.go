package backend

import (
	"testing"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpNames(t *testing.T) {
	for o := Op(0); o < numOps; o++ {
		name := o.String()
		require.NotEmpty(t, name)
		parsed, err := ParseOp(name)
		require.NoError(t, err)
		assert.Equal(t, o, parsed)
	}
	_, err := ParseOp("svd")
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities{
		Kind:  GPU,
		Types: dtype.SetOf(dtype.Float32, dtype.Float64),
		Ops:   OpsOf(OpDot, OpSum),
	}
	assert.True(t, caps.Supports(OpDot, dtype.Float64))
	assert.False(t, caps.Supports(OpDot, dtype.Complex128))
	assert.False(t, caps.Supports(OpMatrixProd, dtype.Float64))
}

func TestBinaryOps(t *testing.T) {
	assert.Equal(t, 5.0, Plus[float64]().Fn(2, 3))
	assert.Equal(t, int32(-1), Minus[int32]().Fn(2, 3))
	assert.Equal(t, complex64(-1), Times[complex64]().Fn(1i, 1i))
	assert.Equal(t, 2.5, Divide[float64]().Fn(5, 2))
	assert.Equal(t, uint8(2), Min[uint8]().Fn(2, 3))
	assert.Equal(t, float32(3), Max[float32]().Fn(2, 3))

	c := Custom("hypot2", func(x, y float64) float64 { return x*x + y*y })
	assert.Equal(t, "custom:hypot2", c.Name)
	assert.False(t, IsBuiltin(c.Name))
	assert.True(t, IsBuiltin(NameMax))
}

func TestRegion(t *testing.T) {
	r := Region{Row: 1, Col: 2, Rows: 2, Cols: 3, LD: 4}
	assert.Equal(t, 9, r.Index(0, 0))
	assert.Equal(t, 14, r.Index(1, 1))
	lo, hi := r.Column(2)
	assert.Equal(t, 17, lo)
	assert.Equal(t, 19, hi)
	assert.Equal(t, 2, r.Diag())
	assert.Equal(t, Region{Rows: 3, Cols: 2, LD: 3}, Whole(3, 2))
}

func TestMeanFromSums(t *testing.T) {
	means, err := MeanFromSums([]int32{6, 9, 12}, 3, 3, Cols, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, means.Data())

	// A 2x3 matrix has two diagonal elements, so only the first two columns
	// lose one from their count.
	means, err = MeanFromSums([]float64{4, 2, 9}, 2, 3, Cols, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 2, 4.5}, means.Data())

	_, err = MeanFromSums([]float64{0}, 1, 1, Rows, true)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
}
