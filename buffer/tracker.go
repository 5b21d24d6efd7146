// Package buffer tracks where the data of a logical array lives: in host
// memory, in device memory, or both, and whether the device copy is stale.
//
// Each Array or Wrapper owns exactly one Tracker. The tracker allocates and
// transfers lazily: nothing reaches the device until an operation needs it
// there. Every transfer is synchronous from the caller's point of view. A
// Tracker is not safe for concurrent use.
package buffer

import (
	"github.com/dustin/go-humanize"
	"github.com/notargets/devbuf/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Variant distinguishes the two buffer-owning types.
type Variant uint8

const (
	// HostManaged buffers own their host storage and may drop and
	// re-allocate it (Array).
	HostManaged Variant = iota
	// DeviceManaged buffers wrap caller-owned host storage and are promoted
	// to the device explicitly by their owner (Wrapper).
	DeviceManaged
)

func (v Variant) String() string {
	if v == DeviceManaged {
		return "DeviceManaged"
	}
	return "HostManaged"
}

// Buffer is implemented by *Array[T] and *Wrapper[T].
type Buffer interface {
	Placement() *Tracker
	Variant() Variant
}

// hostStorage is the owner side of a tracker: the concrete array type holds
// the host memory, the tracker only borrows byte views of it.
type hostStorage interface {
	hostBytes() []byte
	// allocHost provides host storage to read device data into, reporting
	// false when the owner cannot provide any.
	allocHost() ([]byte, bool)
	freeHost()
}

// Tracker is the placement state of one logical array.
type Tracker struct {
	noCopy noCopy

	dev      device.Device
	count    int
	elemSize int
	state    State
	alloc    *allocation
	host     hostStorage
}

func (t *Tracker) init(dev device.Device, count, elemSize int, host hostStorage) {
	t.dev = dev
	t.count = count
	t.elemSize = elemSize
	t.host = host
	t.state = HostOnly
}

// Placement returns the tracker itself. It is nil for a nil tracker.
func (t *Tracker) Placement() *Tracker { return t }

// Device returns the device the buffer is placed on.
func (t *Tracker) Device() device.Device { return t.dev }

// Size returns the element count.
func (t *Tracker) Size() int { return t.count }

// ElementSize returns the size of one element in bytes.
func (t *Tracker) ElementSize() int { return t.elemSize }

// Bytes returns the full extent in bytes.
func (t *Tracker) Bytes() int64 { return int64(t.count) * int64(t.elemSize) }

func (t *Tracker) State() State { return t.state }

func (t *Tracker) IsOnHost() bool { return t.state.OnHost() }

func (t *Tracker) IsOnDevice() bool { return t.state.OnDevice() }

func (t *Tracker) IsDeviceDirty() bool { return t.state.DeviceDirty() }

func (t *Tracker) apply(op string, e event) error {
	n, ok := t.state.next(e)
	if !ok {
		return invalidState(op, t.state, "transition %s not allowed", e)
	}
	t.state = n
	return nil
}

// MaterializeOnDevice makes sure a device allocation exists. A host copy, if
// present, is copied in by the allocation itself; otherwise the device
// memory is left uninitialized. It is a no-op when already on device.
func (t *Tracker) MaterializeOnDevice() error {
	if t.state.OnDevice() {
		return nil
	}

	bytes := t.Bytes()
	var src []byte
	if t.state.OnHost() {
		src = t.host.hostBytes()
		klog.V(2).Infof("copying buffer to device of %d elements (%s)", t.count, humanize.Bytes(uint64(bytes)))
	} else {
		klog.V(2).Infof("creating buffer on device of %d elements (%s)", t.count, humanize.Bytes(uint64(bytes)))
	}

	mem, err := t.dev.Malloc(bytes, src)
	if err != nil {
		return allocationFailed(bytes, err)
	}
	t.alloc = newAllocation(t.dev, mem)
	return t.apply("materializeOnDevice", allocDevice)
}

// TransferToDevice writes the host copy to the device, allocating the device
// memory first if needed. It returns after the write completed.
func (t *Tracker) TransferToDevice() error {
	if !t.state.OnHost() {
		return invalidState("transferToDevice", t.state, "no host copy to transfer")
	}
	if !t.state.OnDevice() {
		return t.MaterializeOnDevice()
	}

	ev, err := t.dev.Write(t.alloc.mem, t.host.hostBytes(), true)
	if err != nil {
		return errors.Wrapf(err, "transferToDevice(): writing %d elements", t.count)
	}
	if err = ev.Wait(); err != nil {
		return errors.Wrap(err, "transferToDevice(): waiting for write")
	}
	return t.apply("transferToDevice", upload)
}

// TransferToHost drains the device queue and reads the device copy into host
// storage. An Array that dropped its host copy gets fresh host storage; a
// Wrapper whose host storage was released fails with InvalidStateError.
// When the drain or the read fails the placement is left as it was.
func (t *Tracker) TransferToHost() error {
	if !t.state.OnDevice() {
		return invalidState("transferToHost", t.state, "no device copy to transfer")
	}

	attach := !t.state.OnHost()
	dst := t.host.hostBytes()
	if attach {
		var ok bool
		if dst, ok = t.host.allocHost(); !ok {
			return invalidState("transferToHost", t.state, "no host storage to read into")
		}
	}

	if err := t.readHost(dst); err != nil {
		if attach {
			t.host.freeHost()
		}
		return err
	}

	if attach {
		if err := t.apply("transferToHost", attachHost); err != nil {
			return err
		}
	}
	return t.apply("transferToHost", download)
}

func (t *Tracker) readHost(dst []byte) error {
	if err := t.dev.Finish(); err != nil {
		return errors.Wrap(err, "transferToHost(): draining device queue")
	}
	ev, err := t.dev.Read(t.alloc.mem, dst, true)
	if err != nil {
		return errors.Wrapf(err, "transferToHost(): reading %d elements", t.count)
	}
	if err = ev.Wait(); err != nil {
		return errors.Wrap(err, "transferToHost(): waiting for read")
	}
	return nil
}

// ReleaseHost hands the host storage back to its owner. Device state is
// unchanged.
func (t *Tracker) ReleaseHost() error {
	if !t.state.OnHost() {
		return invalidState("releaseHost", t.state, "not on host")
	}
	t.host.freeHost()
	return t.apply("releaseHost", releaseHost)
}

// ReleaseDevice frees the device allocation. The buffer is off the device
// afterwards even when the runtime reports a failure.
func (t *Tracker) ReleaseDevice() error {
	if !t.state.OnDevice() {
		return invalidState("releaseDevice", t.state, "not on device")
	}
	err := t.alloc.release()
	t.alloc = nil
	if terr := t.apply("releaseDevice", releaseDevice); terr != nil {
		return terr
	}
	if err != nil {
		return errors.Wrap(err, "releaseDevice()")
	}
	return nil
}

// MarkDeviceStale records that the device copy was written through a side
// channel and no longer matches the host copy.
func (t *Tracker) MarkDeviceStale() error {
	if !t.state.OnDevice() {
		return invalidState("markDeviceStale", t.state, "not on device")
	}
	return t.apply("markDeviceStale", markStale)
}

// DeviceMemory returns the device handle, transferring the host copy first
// when the buffer is not on the device yet.
func (t *Tracker) DeviceMemory() (device.Memory, error) {
	if !t.state.OnDevice() {
		if !t.state.OnHost() {
			return nil, invalidState("getDeviceArray", t.state, "not on device, and not on host")
		}
		if err := t.TransferToDevice(); err != nil {
			return nil, err
		}
	}
	return t.alloc.mem, nil
}

// Close releases the device allocation, if any. It is safe to call more
// than once and is meant to be deferred right after construction.
func (t *Tracker) Close() error {
	if !t.state.OnDevice() {
		return nil
	}
	return t.ReleaseDevice()
}
