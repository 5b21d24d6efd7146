package buffer

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"testing"
)

// TestMatrix_RoundTrip tests column-major placement of gonum matrices
func TestMatrix_RoundTrip(t *testing.T) {
	dev := newDevice()

	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	a := FromMatrix(dev, m)
	defer a.Close()

	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, a.Data())

	require.NoError(t, a.TransferToDevice())
	require.NoError(t, a.ReleaseHost())
	_, err := ToDense(a, 2, 3)
	assert.True(t, IsInvalidState(err))

	require.NoError(t, a.TransferToHost())
	d, err := ToDense(a, 2, 3)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, d))

	_, err = ToDense(a, 3, 3)
	assert.True(t, IsMismatch(err))
	_, err = ToDense(a, -2, -3)
	assert.True(t, IsMismatch(err))
}

// TestHalfArray tests the half precision variant
func TestHalfArray(t *testing.T) {
	dev := newDevice()

	src := []float32{0.5, -1, 2, 1024}
	h := HalfFromFloat32(dev, src)
	defer h.Close()
	assert.Equal(t, 2, h.ElementSize())

	require.NoError(t, h.TransferToDevice())
	require.NoError(t, h.ReleaseHost())
	_, err := HalfToFloat32(h)
	assert.True(t, IsInvalidState(err))

	require.NoError(t, h.TransferToHost())
	out, err := HalfToFloat32(h)
	require.NoError(t, err)
	assert.InDeltaSlicef(t, src, out, 1.e-6, "")
}
