package buffer

import (
	"github.com/notargets/devbuf/device"
	"github.com/notargets/devbuf/device/hostsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"testing"
)

func newDevice() *hostsim.Device {
	return hostsim.New(hostsim.Options{})
}

// TestTracker_FreshArray tests the placement of newly constructed buffers
func TestTracker_FreshArray(t *testing.T) {
	dev := newDevice()

	for _, n := range []int{1, 4, 100} {
		a := NewArrayFrom(dev, make([]float32, n))
		assert.True(t, a.IsOnHost())
		assert.False(t, a.IsOnDevice())
		assert.False(t, a.IsDeviceDirty())
		assert.Equal(t, n, a.Size())
		assert.Equal(t, 4, a.ElementSize())
		assert.Equal(t, HostOnly, a.State())
	}

	w := NewWrapper(dev, []int64{1, 2, 3})
	assert.True(t, w.IsOnHost())
	assert.False(t, w.IsOnDevice())
	assert.Equal(t, 8, w.ElementSize())

	// nothing touches the device until it is needed
	assert.Equal(t, 0, dev.Stats().Allocs)
}

// TestTracker_TransferToDevice tests lazy allocation and host->device writes
func TestTracker_TransferToDevice(t *testing.T) {
	dev := newDevice()

	t.Run("AllocatesWithCopy", func(t *testing.T) {
		for _, n := range []int{1, 7, 1024} {
			a := NewFloatArray(dev, n)
			require.NoError(t, a.TransferToDevice())
			assert.True(t, a.IsOnDevice())
			assert.True(t, a.IsOnHost())
			assert.False(t, a.IsDeviceDirty())
			require.NoError(t, a.Close())
		}
	})

	t.Run("RewritesExistingAllocation", func(t *testing.T) {
		a := NewArrayFrom(dev, []float32{1, 2, 3, 4})
		defer a.Close()
		require.NoError(t, a.TransferToDevice())
		before := dev.Stats()

		require.NoError(t, a.Set(2, 30))
		assert.True(t, a.IsDeviceDirty())

		require.NoError(t, a.TransferToDevice())
		after := dev.Stats()
		assert.Equal(t, before.Allocs, after.Allocs, "no new allocation")
		assert.Equal(t, before.Writes+1, after.Writes)
		assert.False(t, a.IsDeviceDirty())

		mem, err := a.DeviceMemory()
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 30, 4}, hostsim.View[float32](mem))
	})

	t.Run("NoHostCopy", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		require.NoError(t, a.ReleaseHost())
		err := a.TransferToDevice()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
		assert.Contains(t, err.Error(), "no host copy to transfer")
	})
}

// TestTracker_MaterializeOnDevice tests allocation with and without host data
func TestTracker_MaterializeOnDevice(t *testing.T) {
	dev := newDevice()

	t.Run("WithHostCopy", func(t *testing.T) {
		a := NewArrayFrom(dev, []int32{5, 6, 7})
		defer a.Close()
		require.NoError(t, a.MaterializeOnDevice())
		assert.Equal(t, Synced, a.State())
		mem, err := a.DeviceMemory()
		require.NoError(t, err)
		assert.Equal(t, []int32{5, 6, 7}, hostsim.View[int32](mem))
	})

	t.Run("Uninitialized", func(t *testing.T) {
		a := NewIntArray(dev, 3)
		defer a.Close()
		require.NoError(t, a.ReleaseHost())
		before := dev.Stats()
		require.NoError(t, a.MaterializeOnDevice())
		after := dev.Stats()
		assert.Equal(t, DeviceOnly, a.State())
		assert.Equal(t, before.AllocsWithCopy, after.AllocsWithCopy)
		assert.Equal(t, before.Allocs+1, after.Allocs)
	})

	t.Run("Idempotent", func(t *testing.T) {
		a := NewIntArray(dev, 3)
		defer a.Close()
		require.NoError(t, a.MaterializeOnDevice())
		allocs := dev.Stats().Allocs
		require.NoError(t, a.MaterializeOnDevice())
		assert.Equal(t, allocs, dev.Stats().Allocs)
	})

	t.Run("AllocationFailure", func(t *testing.T) {
		a := NewDoubleArray(dev, 16)
		dev.FailNextAlloc(device.MemObjectAllocationFailure)
		err := a.MaterializeOnDevice()
		require.Error(t, err)

		var allocErr *AllocationError
		require.ErrorAs(t, err, &allocErr)
		assert.Equal(t, device.MemObjectAllocationFailure, allocErr.Code)
		assert.Equal(t, int64(16*8), allocErr.Bytes)
		assert.False(t, a.IsOnDevice())
		assert.True(t, a.IsOnHost())
	})
}

// TestTracker_RoundTrip tests host->device->host content preservation
func TestTracker_RoundTrip(t *testing.T) {
	dev := newDevice()
	rng := rand.New(rand.NewSource(42))

	for _, n := range []int{1, 16, 1_000_000} {
		src := make([]float32, n)
		for i := range src {
			src[i] = rng.Float32()*2 - 1
		}

		a := NewArrayFrom(dev, src)
		require.NoError(t, a.TransferToDevice())

		// read back into a distinct host buffer of the same size
		require.NoError(t, a.ReleaseHost())
		assert.Nil(t, a.Data())
		require.NoError(t, a.TransferToHost())

		assert.True(t, a.IsOnHost())
		assert.False(t, a.IsDeviceDirty())
		require.Len(t, a.Data(), n)
		assert.Equal(t, asBytes(src), asBytes(a.Data()), "n=%d", n)
		require.NoError(t, a.Close())
	}
	assert.Equal(t, 0, dev.Live())
}

// TestTracker_TransferToHost tests the device->host path
func TestTracker_TransferToHost(t *testing.T) {
	dev := newDevice()

	t.Run("NotOnDevice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		err := a.TransferToHost()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
		assert.Contains(t, err.Error(), "no device copy to transfer")
	})

	t.Run("DrainsQueueFirst", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		defer a.Close()
		require.NoError(t, a.TransferToDevice())
		finishes := dev.Stats().Finishes
		require.NoError(t, a.TransferToHost())
		assert.Equal(t, finishes+1, dev.Stats().Finishes)
	})

	t.Run("ClearsDirty", func(t *testing.T) {
		a := NewArrayFrom(dev, []float32{1, 2})
		defer a.Close()
		require.NoError(t, a.TransferToDevice())
		require.NoError(t, a.MarkDeviceStale())
		assert.True(t, a.IsDeviceDirty())
		require.NoError(t, a.TransferToHost())
		assert.False(t, a.IsDeviceDirty())
	})

	t.Run("WrapperReadsIntoCallerSlice", func(t *testing.T) {
		host := []int32{1, 2, 3}
		w := NewWrapper(dev, host)
		defer w.Close()
		require.NoError(t, w.TransferToDevice())

		mem, err := w.DeviceMemory()
		require.NoError(t, err)
		copy(hostsim.View[int32](mem), []int32{9, 8, 7})

		require.NoError(t, w.TransferToHost())
		assert.Equal(t, []int32{9, 8, 7}, host)
	})

	t.Run("WrapperWithoutHostStorage", func(t *testing.T) {
		w := NewWrapper(dev, []int32{1, 2, 3})
		defer w.Close()
		require.NoError(t, w.TransferToDevice())
		require.NoError(t, w.ReleaseHost())
		assert.Nil(t, w.Data())

		err := w.TransferToHost()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
		assert.Equal(t, DeviceOnly, w.State())
	})
}

// TestTracker_Release tests releasing either side
func TestTracker_Release(t *testing.T) {
	dev := newDevice()

	t.Run("ReleaseDeviceNotOnDevice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		err := a.ReleaseDevice()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
		assert.Contains(t, err.Error(), "not on device")
	})

	t.Run("ReleaseDevice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		require.NoError(t, a.TransferToDevice())
		require.NoError(t, a.MarkDeviceStale())
		live := dev.Live()

		require.NoError(t, a.ReleaseDevice())
		assert.False(t, a.IsOnDevice())
		assert.False(t, a.IsDeviceDirty())
		assert.True(t, a.IsOnHost())
		assert.Equal(t, live-1, dev.Live())
	})

	t.Run("ReleaseHostTwice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		require.NoError(t, a.ReleaseHost())
		assert.Equal(t, Absent, a.State())
		err := a.ReleaseHost()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
	})

	t.Run("ReleaseHostKeepsDevice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		defer a.Close()
		require.NoError(t, a.TransferToDevice())
		require.NoError(t, a.ReleaseHost())
		assert.Equal(t, DeviceOnly, a.State())
	})

	t.Run("CloseReleasesOnce", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		require.NoError(t, a.TransferToDevice())
		releases := dev.Stats().Releases

		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
		assert.Equal(t, releases+1, dev.Stats().Releases)
	})

	t.Run("CloseOffDevice", func(t *testing.T) {
		a := NewFloatArray(dev, 4)
		require.NoError(t, a.Close())
	})
}

// TestTracker_MarkDeviceStale tests staleness bookkeeping
func TestTracker_MarkDeviceStale(t *testing.T) {
	dev := newDevice()

	a := NewFloatArray(dev, 2)
	defer a.Close()
	err := a.MarkDeviceStale()
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))

	require.NoError(t, a.TransferToDevice())
	require.NoError(t, a.MarkDeviceStale())
	assert.True(t, a.IsDeviceDirty())
	assert.Equal(t, Dirty, a.State())
}

// TestTracker_DeviceMemory tests getDeviceArray semantics
func TestTracker_DeviceMemory(t *testing.T) {
	dev := newDevice()

	t.Run("LazyTransfer", func(t *testing.T) {
		a := NewArrayFrom(dev, []float64{1, 2})
		defer a.Close()
		mem, err := a.DeviceMemory()
		require.NoError(t, err)
		assert.Equal(t, int64(16), mem.Bytes())
		assert.Equal(t, Synced, a.State())
	})

	t.Run("NeitherHostNorDevice", func(t *testing.T) {
		a := NewDoubleArray(dev, 2)
		require.NoError(t, a.ReleaseHost())
		_, err := a.DeviceMemory()
		require.Error(t, err)
		assert.True(t, IsInvalidState(err))
		assert.Contains(t, err.Error(), "not on device, and not on host")
	})
}

// TestArray_HostAccess tests Get and Set on the host copy
func TestArray_HostAccess(t *testing.T) {
	dev := newDevice()

	a := NewArrayFrom(dev, []int64{10, 20})
	defer a.Close()

	v, err := a.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	_, err = a.Get(2)
	assert.Error(t, err)
	assert.Error(t, a.Set(-1, 0))

	// no device copy yet, so nothing becomes dirty
	require.NoError(t, a.Set(0, 11))
	assert.Equal(t, HostOnly, a.State())

	require.NoError(t, a.TransferToDevice())
	require.NoError(t, a.ReleaseHost())
	_, err = a.Get(0)
	assert.True(t, IsInvalidState(err))
	assert.True(t, IsInvalidState(a.Set(0, 1)))
}
