package buffer

import (
	"fmt"
	"github.com/notargets/devbuf/device"
)

// Wrapper places a caller-owned slice. The wrapper never allocates host
// memory of its own: data read back from the device lands in the caller's
// slice, and once the host copy is released it cannot be read back.
//
// Kernel binding never moves a Wrapper to the device implicitly for input;
// its owner promotes it with TransferToDevice first.
type Wrapper[T Element] struct {
	Tracker
	data []T
}

// NewWrapper wraps data. The slice must stay valid and unaliased by other
// buffers for the lifetime of the wrapper.
func NewWrapper[T Element](dev device.Device, data []T) *Wrapper[T] {
	if len(data) == 0 {
		panic("buffer: cannot wrap an empty slice")
	}
	if dev == nil {
		panic("buffer: nil device")
	}
	w := &Wrapper[T]{data: data}
	w.init(dev, len(data), elementSize[T](), w)
	return w
}

// Placement returns the tracker of w, or nil when w is nil.
func (w *Wrapper[T]) Placement() *Tracker {
	if w == nil {
		return nil
	}
	return &w.Tracker
}

func (w *Wrapper[T]) Variant() Variant { return DeviceManaged }

// Data returns the wrapped slice, or nil after ReleaseHost.
func (w *Wrapper[T]) Data() []T { return w.data }

func (w *Wrapper[T]) String() string {
	return fmt.Sprintf("Wrapper[%d x %dB, %s]", w.count, w.elemSize, w.state)
}

func (w *Wrapper[T]) hostBytes() []byte { return asBytes(w.data) }

func (w *Wrapper[T]) allocHost() ([]byte, bool) {
	if w.data == nil {
		return nil, false
	}
	return asBytes(w.data), true
}

func (w *Wrapper[T]) freeHost() { w.data = nil }
