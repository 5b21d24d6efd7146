package buffer

import (
	"github.com/dustin/go-humanize"
	"github.com/notargets/devbuf/device"
	"k8s.io/klog/v2"
	"runtime"
)

// allocation owns one device allocation and releases it exactly once,
// either through release or, for a buffer that was never closed, when the
// garbage collector finalizes it.
type allocation struct {
	dev      device.Device
	mem      device.Memory
	released bool
}

func newAllocation(dev device.Device, mem device.Memory) *allocation {
	a := &allocation{dev: dev, mem: mem}
	runtime.SetFinalizer(a, (*allocation).finalize)
	return a
}

// release frees the allocation. Later calls are no-ops, also when the first
// release failed: a failed release is never retried.
func (a *allocation) release() error {
	if a.released {
		return nil
	}
	a.released = true
	runtime.SetFinalizer(a, nil)
	klog.V(2).Infof("releasing device array of %s", humanize.Bytes(uint64(a.mem.Bytes())))
	return a.dev.Release(a.mem)
}

func (a *allocation) finalize() {
	klog.Warningf("device array of %s was never released, releasing it on collection",
		humanize.Bytes(uint64(a.mem.Bytes())))
	if err := a.release(); err != nil {
		klog.Warningf("failed to release leaked device array: %v", err)
	}
}

// noCopy makes go vet flag copies of the structs embedding it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
