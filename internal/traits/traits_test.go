package traits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-linalg/internal/backend"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

func TestModuleString(t *testing.T) {
	assert.Equal(t, "core", Core.String())
	assert.Equal(t, "eigsolver", Eigsolver.String())
	assert.Equal(t, "Module(9)", Module(9).String())
	assert.Len(t, Modules(), 4)
}

func TestBackendForSolvers(t *testing.T) {
	for _, m := range []Module{Linsolver, Eigsolver} {
		t.Run(m.String(), func(t *testing.T) {
			kind, err := BackendFor(m, dtype.Float64)
			require.NoError(t, err)
			assert.Equal(t, backend.CPU, kind)

			_, err = BackendFor(m, dtype.Int32)
			assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
			_, err = BackendFor(m, dtype.Complex128)
			assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
		})
	}

	_, err := BackendFor(Module(42), dtype.Float64)
	assert.Error(t, err)
}

func TestBackendForFollowsBuild(t *testing.T) {
	for _, m := range []Module{Core, Redux} {
		want := CoreBackend
		if m == Redux {
			want = ReduxBackend
		}
		kind, err := BackendFor(m, dtype.Float32)
		require.NoError(t, err)
		assert.Equal(t, want, kind)

		// Complex scalars have no device kernels.
		_, err = BackendFor(m, dtype.Complex64)
		if want == backend.GPU {
			assert.ErrorIs(t, err, errdefs.ErrUnsupportedType)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestSolvers(t *testing.T) {
	d := linalg.New()
	m, err := container.MatrixFrom(2, 2, []float64{2, 0, 0, 3})
	require.NoError(t, err)

	l, err := CholeskyFactor[float64](d, m, true)
	require.NoError(t, err)
	rhs, err := container.VectorFrom([]float64{4, 9})
	require.NoError(t, err)
	x, err := CholeskySolve[float64](d, l, rhs, true)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3}, x.Data(), 1e-12)

	vals, vecs, err := EigenSymmetric[float64](d, m)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3}, vals.Data(), 1e-12)
	rows, cols := vecs.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
}
