package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

func TestCPUBackend_Reductions(t *testing.T) {
	b := New()
	k := For[float64](b)

	// [1 4 7]
	// [2 5 8]
	// [3 6 9]
	m, err := container.MatrixFrom(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)
	sym, err := container.MatrixFrom(3, 3, []float64{1, 2, 3, 2, 4, 5, 3, 5, 6})
	require.NoError(t, err)
	// [1 2 3]
	// [4 5 6]
	wide, err := container.MatrixFrom(2, 3, []float64{1, 4, 2, 5, 3, 6})
	require.NoError(t, err)

	t.Run("Trace", func(t *testing.T) {
		got, err := k.Trace(m)
		require.NoError(t, err)
		assert.Equal(t, 15.0, got)

		got, err = k.Trace(wide)
		require.NoError(t, err)
		assert.Equal(t, 6.0, got, "leading diagonal of a non-square matrix")
	})

	t.Run("SumSymmetric", func(t *testing.T) {
		got, err := k.SumSymmetric(sym, false)
		require.NoError(t, err)
		full, err := k.MatrixSum(sym, false)
		require.NoError(t, err)
		assert.Equal(t, full, got)
		assert.Equal(t, 31.0, got)

		got, err = k.SumSymmetric(sym, true)
		require.NoError(t, err)
		assert.Equal(t, 20.0, got)

		_, err = k.SumSymmetric(wide, false)
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	})

	t.Run("BlockSum", func(t *testing.T) {
		blk, err := container.NewBlock[float64](m, 1, 1, 2, 2)
		require.NoError(t, err)

		got, err := k.BlockSum(blk, false)
		require.NoError(t, err)
		assert.Equal(t, 28.0, got)

		got, err = k.BlockSum(blk, true)
		require.NoError(t, err)
		assert.Equal(t, 14.0, got)

		whole, err := k.BlockSum(container.WholeBlock[float64](m), true)
		require.NoError(t, err)
		want, err := k.MatrixSum(m, true)
		require.NoError(t, err)
		assert.Equal(t, want, whole)
	})

	t.Run("BlockSumSymmetric", func(t *testing.T) {
		blk, err := container.NewBlock[float64](sym, 1, 1, 2, 2)
		require.NoError(t, err)

		got, err := k.BlockSumSymmetric(blk, false)
		require.NoError(t, err)
		assert.Equal(t, 20.0, got)

		got, err = k.BlockSumSymmetric(blk, true)
		require.NoError(t, err)
		assert.Equal(t, 10.0, got)

		strip, err := container.NewBlock[float64](sym, 0, 0, 1, 3)
		require.NoError(t, err)
		_, err = k.BlockSumSymmetric(strip, false)
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	})

	t.Run("BlockSumAxis", func(t *testing.T) {
		blk, err := container.NewBlock[float64](m, 1, 1, 2, 2)
		require.NoError(t, err)

		cols, err := k.BlockSumAxis(blk, backend.Cols, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{11, 17}, cols.Data())

		rows, err := k.BlockSumAxis(blk, backend.Rows, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{13, 15}, rows.Data())

		rows, err = k.BlockSumAxis(blk, backend.Rows, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{8, 6}, rows.Data())

		for _, axis := range []backend.Axis{backend.Cols, backend.Rows} {
			got, err := k.BlockSumAxis(container.WholeBlock[float64](wide), axis, true)
			require.NoError(t, err)
			want, err := k.SumAxis(wide, axis, true)
			require.NoError(t, err)
			assert.Equal(t, want.Data(), got.Data(), "axis %s", axis)
		}
	})

	t.Run("StaleBlock", func(t *testing.T) {
		blk := container.Block[float64]{Of: wide, Row: 1, Col: 1, Rows: 2, Cols: 2}
		_, err := k.BlockSum(blk, false)
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)

		_, err = k.BlockSum(container.Block[float64]{Rows: 1, Cols: 1}, false)
		assert.ErrorIs(t, err, errdefs.ErrBadOperand)
	})

	t.Run("MatrixMaxMean", func(t *testing.T) {
		mx, err := MatrixMax[float64](b, m)
		require.NoError(t, err)
		assert.Equal(t, 9.0, mx)

		mean, err := MatrixMean[float64](b, m)
		require.NoError(t, err)
		assert.Equal(t, 5.0, mean)

		ints, err := container.MatrixFrom(2, 2, []int32{-4, 7, 1, 2})
		require.NoError(t, err)
		imax, err := MatrixMax[int32](b, ints)
		require.NoError(t, err)
		assert.Equal(t, int32(7), imax)
	})

	t.Run("MeanAxis", func(t *testing.T) {
		cols, err := MeanAxis[float64](b, m, backend.Cols, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 5, 8}, cols.Data())

		rows, err := MeanAxis[float64](b, m, backend.Rows, false)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 5, 6}, rows.Data())

		cols, err = MeanAxis[float64](b, m, backend.Cols, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{2.5, 5, 7.5}, cols.Data())

		cols, err = MeanAxis[float64](b, wide, backend.Cols, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 2, 4.5}, cols.Data())

		rows, err = MeanAxis[float64](b, wide, backend.Rows, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{2.5, 5}, rows.Data())

		one, err := container.MatrixFrom(1, 1, []float64{3})
		require.NoError(t, err)
		_, err = MeanAxis[float64](b, one, backend.Cols, true)
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	})

	t.Run("ComplexMean", func(t *testing.T) {
		got, err := ComplexMean[complex128](b, vec(t, 1+1i, 3-1i, 2+3i))
		require.NoError(t, err)
		assert.Equal(t, 2+1i, got)

		empty, err := container.View([]complex128{}, 0)
		require.NoError(t, err)
		_, err = ComplexMean[complex128](b, empty)
		assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
	})
}
