package buffer

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CopyTo copies the device copy of t directly into the device copy of
// target, without a host round-trip. Both buffers must already be on the
// same device and agree in element size and count. CopyTo waits for this
// copy only, not for the whole queue, and marks target stale.
func (t *Tracker) CopyTo(target Buffer) error {
	if target == nil || target.Placement() == nil {
		return errors.New("copyTo: nil target buffer")
	}
	dst := target.Placement()
	if !t.state.OnDevice() {
		return invalidState("copyTo", t.state,
			"source not on device: call TransferToDevice() or MaterializeOnDevice() first")
	}
	if !dst.state.OnDevice() {
		return invalidState("copyTo", dst.state,
			"target not on device: call TransferToDevice() or MaterializeOnDevice() on target first")
	}
	if t.dev != dst.dev {
		return invalidState("copyTo", dst.state, "target lives on a different device")
	}
	if t.elemSize != dst.elemSize {
		return mismatch("element size", t.elemSize, dst.elemSize)
	}
	if t.count != dst.count {
		return mismatch("array size", t.count, dst.count)
	}

	bytes := t.Bytes()
	klog.V(2).Infof("copying %d elements (%s) device to device", t.count, humanize.Bytes(uint64(bytes)))
	ev, err := t.dev.Copy(dst.alloc.mem, t.alloc.mem, bytes)
	if err != nil {
		return errors.Wrap(err, "copyTo failed")
	}
	if err = ev.Wait(); err != nil {
		return errors.Wrap(err, "copyTo: waiting for copy")
	}
	return dst.MarkDeviceStale()
}
