package buffer

import (
	"fmt"
	"github.com/notargets/devbuf/device"
	"github.com/x448/float16"
	"unsafe"
)

// Element is the set of element types an array can hold.
// float16.Float16 is covered by ~uint16.
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint16
}

// Array is a self-describing array: it owns its host storage, gives it up
// when the data moves to the device for good, and re-allocates it when the
// data is read back.
type Array[T Element] struct {
	Tracker
	data []T
}

type (
	FloatArray  = Array[float32]
	DoubleArray = Array[float64]
	IntArray    = Array[int32]
	LongArray   = Array[int64]
	HalfArray   = Array[float16.Float16]
)

// NewArray creates an array of n zeroed elements on the host.
func NewArray[T Element](dev device.Device, n int) *Array[T] {
	if n <= 0 {
		panic(fmt.Sprintf("buffer: array size must be positive, got %d", n))
	}
	if dev == nil {
		panic("buffer: nil device")
	}
	a := &Array[T]{data: make([]T, n)}
	a.init(dev, n, elementSize[T](), a)
	return a
}

// NewArrayFrom creates an array holding a copy of data.
func NewArrayFrom[T Element](dev device.Device, data []T) *Array[T] {
	a := NewArray[T](dev, len(data))
	copy(a.data, data)
	return a
}

func NewFloatArray(dev device.Device, n int) *FloatArray   { return NewArray[float32](dev, n) }
func NewDoubleArray(dev device.Device, n int) *DoubleArray { return NewArray[float64](dev, n) }
func NewIntArray(dev device.Device, n int) *IntArray       { return NewArray[int32](dev, n) }
func NewLongArray(dev device.Device, n int) *LongArray     { return NewArray[int64](dev, n) }
func NewHalfArray(dev device.Device, n int) *HalfArray     { return NewArray[float16.Float16](dev, n) }

// HalfFromFloat32 creates a half precision array rounded from src.
func HalfFromFloat32(dev device.Device, src []float32) *HalfArray {
	a := NewHalfArray(dev, len(src))
	for i, v := range src {
		a.data[i] = float16.Fromfloat32(v)
	}
	return a
}

// HalfToFloat32 widens the host copy of a to float32.
func HalfToFloat32(a *HalfArray) ([]float32, error) {
	if !a.IsOnHost() {
		return nil, invalidState("halfToFloat32", a.state, "not on host")
	}
	out := make([]float32, len(a.data))
	for i, v := range a.data {
		out[i] = v.Float32()
	}
	return out, nil
}

// Placement returns the tracker of a, or nil when a is nil.
func (a *Array[T]) Placement() *Tracker {
	if a == nil {
		return nil
	}
	return &a.Tracker
}

func (a *Array[T]) Variant() Variant { return HostManaged }

// Data returns the host copy, or nil when the array is not on the host.
// Writes through the returned slice are not tracked; use Set or
// MarkDeviceStale when the device copy has to be refreshed.
func (a *Array[T]) Data() []T { return a.data }

// Get returns element i of the host copy.
func (a *Array[T]) Get(i int) (T, error) {
	var zero T
	if !a.IsOnHost() {
		return zero, invalidState("get", a.state, "not on host")
	}
	if i < 0 || i >= a.count {
		return zero, fmt.Errorf("get: index %d out of range [0,%d)", i, a.count)
	}
	return a.data[i], nil
}

// Set writes element i of the host copy and marks an existing device copy
// stale.
func (a *Array[T]) Set(i int, v T) error {
	if !a.IsOnHost() {
		return invalidState("set", a.state, "not on host")
	}
	if i < 0 || i >= a.count {
		return fmt.Errorf("set: index %d out of range [0,%d)", i, a.count)
	}
	a.data[i] = v
	if a.IsOnDevice() {
		return a.MarkDeviceStale()
	}
	return nil
}

func (a *Array[T]) hostBytes() []byte { return asBytes(a.data) }

func (a *Array[T]) allocHost() ([]byte, bool) {
	a.data = make([]T, a.count)
	return asBytes(a.data), true
}

func (a *Array[T]) freeHost() { a.data = nil }

func elementSize[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// asBytes views s as raw bytes without copying.
func asBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*elementSize[T]())
}
