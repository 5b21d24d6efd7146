// Package device defines the contract between buffer placement tracking and
// an accelerator runtime: allocation, host<->device and device<->device
// transfers, queue draining, release and positional kernel arguments.
//
// Backends live in sub-packages: device/occa drives a real OCCA runtime and
// device/hostsim emulates a device in host memory.
package device

// Memory is an opaque device allocation handle.
type Memory interface {
	// Bytes returns the size of the allocation in bytes.
	Bytes() int64
}

// Event is the completion signal of one enqueued device operation.
type Event interface {
	// Wait blocks until the operation it was issued for has completed.
	Wait() error
}

// Device is an accelerator context together with its command queue.
// A Device is shared by every buffer created on it and is owned by the
// caller, never by the buffers.
type Device interface {
	// Mode names the backend, e.g. "Serial", "OpenMP", "CUDA" or "HostSim".
	Mode() string

	// Malloc allocates bytes of device memory. When src is non-nil the
	// allocation is populated from src in the same step.
	Malloc(bytes int64, src []byte) (Memory, error)

	// Write enqueues a host->device write of len(src) bytes into mem.
	// When blocking is true the call returns only after the write completed.
	Write(mem Memory, src []byte, blocking bool) (Event, error)

	// Read enqueues a device->host read of len(dst) bytes from mem.
	// When blocking is true the call returns only after the read completed.
	Read(mem Memory, dst []byte, blocking bool) (Event, error)

	// Copy enqueues a device->device copy of bytes from src into dst and
	// returns the completion signal of that copy.
	Copy(dst, src Memory, bytes int64) (Event, error)

	// Finish blocks until all outstanding work on the queue has completed.
	Finish() error

	// Release frees a device allocation.
	Release(mem Memory) error
}

// Kernel is a compiled device routine whose arguments are set positionally.
type Kernel interface {
	Name() string

	// SetArg binds value to the positional argument slot index. Values are
	// either a Memory handle or a scalar (int32, int64, float32, float64).
	SetArg(index int, value interface{}) error

	// Run launches the kernel with the arguments currently set.
	Run() error
}

// Done is an Event for operations that already completed.
type Done struct{}

func (Done) Wait() error { return nil }
