package dtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	assert.Equal(t, Int8, Of[int8]())
	assert.Equal(t, Uint64, Of[uint64]())
	assert.Equal(t, Float32, Of[float32]())
	assert.Equal(t, Float64, Of[float64]())
	assert.Equal(t, Complex128, Of[complex128]())
}

func TestSizeAndKinds(t *testing.T) {
	assert.Equal(t, 1, Int8.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 8, Complex64.Size())
	assert.Equal(t, 16, Complex128.Size())
	assert.Equal(t, 0, Invalid.Size())

	assert.True(t, Uint16.IsInteger())
	assert.False(t, Float32.IsInteger())
	assert.True(t, Float32.IsFloat())
	assert.True(t, Complex64.IsComplex())
}

func TestParse(t *testing.T) {
	d, err := Parse("float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, d)

	_, err = Parse("invalid")
	assert.Error(t, err)
	_, err = Parse("bfloat16")
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	s := SetOf(Float32, Float64)
	assert.True(t, s.Has(Float64))
	assert.False(t, s.Has(Complex128))
	assert.False(t, s.Has(Invalid))
	assert.Equal(t, []DType{Float32, Float64}, s.List())
	assert.Len(t, All.List(), 12)
}
