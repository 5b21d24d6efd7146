// Package occa implements the device contract on top of an OCCA runtime
// through the gocca bindings.
package occa

import (
	"fmt"
	"github.com/notargets/devbuf/device"
	"github.com/notargets/gocca"
	"k8s.io/klog/v2"
	"unsafe"
)

// Config selects an OCCA backend.
type Config struct {
	Mode       string // "Serial", "OpenMP", "CUDA", "OpenCL", "HIP"
	DeviceID   int
	PlatformID int
}

// Props renders the config as OCCA device properties.
func (c Config) Props() string {
	switch c.Mode {
	case "CUDA", "HIP":
		return fmt.Sprintf(`{"mode": "%s", "device_id": %d}`, c.Mode, c.DeviceID)
	case "OpenCL":
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": %d, "device_id": %d}`,
			c.PlatformID, c.DeviceID)
	case "":
		return `{"mode": "Serial"}`
	default:
		return fmt.Sprintf(`{"mode": "%s"}`, c.Mode)
	}
}

// Device is an OCCA device and its default stream.
type Device struct {
	dev   *gocca.OCCADevice
	owned bool
}

// Memory wraps an OCCA allocation.
type Memory struct {
	mem   *gocca.OCCAMemory
	bytes int64
}

func (m *Memory) Bytes() int64 { return m.bytes }

// Raw exposes the underlying OCCA memory.
func (m *Memory) Raw() *gocca.OCCAMemory { return m.mem }

// NewDevice creates an OCCA device from cfg. The returned Device owns it and
// frees it on Close.
func NewDevice(cfg Config) (*Device, error) {
	dev, err := gocca.NewDevice(cfg.Props())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s device: %w", cfg.Props(), err)
	}
	if dev == nil {
		return nil, fmt.Errorf("failed to create %s device", cfg.Props())
	}
	return &Device{dev: dev, owned: true}, nil
}

// Wrap adapts an existing OCCA device. The caller keeps ownership.
func Wrap(dev *gocca.OCCADevice) *Device {
	return &Device{dev: dev}
}

// Raw exposes the underlying OCCA device.
func (d *Device) Raw() *gocca.OCCADevice { return d.dev }

// Close frees the OCCA device if it was created by NewDevice.
func (d *Device) Close() {
	if d.owned && d.dev != nil {
		d.dev.Free()
		d.dev = nil
	}
}

func (d *Device) Mode() string { return d.dev.Mode() }

func (d *Device) Malloc(bytes int64, src []byte) (device.Memory, error) {
	if bytes <= 0 {
		return nil, device.CheckError("malloc", device.InvalidBufferSize)
	}
	var ptr unsafe.Pointer
	if src != nil {
		if int64(len(src)) < bytes {
			return nil, device.CheckError("malloc", device.InvalidValue)
		}
		ptr = unsafe.Pointer(&src[0])
	}
	mem := d.dev.Malloc(bytes, ptr, nil)
	if mem == nil {
		return nil, device.CheckError("malloc", device.MemObjectAllocationFailure)
	}
	return &Memory{mem: mem, bytes: bytes}, nil
}

// Write copies src into mem. OCCA copies on the default stream are
// synchronous with respect to the host, so blocking has no further effect.
func (d *Device) Write(mem device.Memory, src []byte, blocking bool) (device.Event, error) {
	m, err := unwrap("write", mem)
	if err != nil {
		return nil, err
	}
	if int64(len(src)) > m.bytes {
		return nil, device.CheckError("write", device.InvalidValue)
	}
	if len(src) > 0 {
		m.mem.CopyFrom(unsafe.Pointer(&src[0]), int64(len(src)))
	}
	return device.Done{}, nil
}

func (d *Device) Read(mem device.Memory, dst []byte, blocking bool) (device.Event, error) {
	m, err := unwrap("read", mem)
	if err != nil {
		return nil, err
	}
	if int64(len(dst)) > m.bytes {
		return nil, device.CheckError("read", device.InvalidValue)
	}
	if len(dst) > 0 {
		m.mem.CopyTo(unsafe.Pointer(&dst[0]), int64(len(dst)))
	}
	return device.Done{}, nil
}

// Copy issues a device->device copy. OCCA has no per-copy event, so the
// returned Event waits for the device stream.
func (d *Device) Copy(dst, src device.Memory, bytes int64) (device.Event, error) {
	to, err := unwrap("copy", dst)
	if err != nil {
		return nil, err
	}
	from, err := unwrap("copy", src)
	if err != nil {
		return nil, err
	}
	if to == from {
		return nil, device.CheckError("copy", device.MemCopyOverlap)
	}
	if bytes > to.bytes || bytes > from.bytes {
		return nil, device.CheckError("copy", device.InvalidValue)
	}
	to.mem.CopyDeviceToDevice(0, from.mem, 0, bytes)
	return streamEvent{d.dev}, nil
}

func (d *Device) Finish() error {
	d.dev.Finish()
	return nil
}

func (d *Device) Release(mem device.Memory) error {
	m, err := unwrap("release", mem)
	if err != nil {
		return err
	}
	m.mem.Free()
	m.mem = nil
	return nil
}

type streamEvent struct {
	dev *gocca.OCCADevice
}

func (e streamEvent) Wait() error {
	e.dev.Finish()
	return nil
}

func unwrap(op string, mem device.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.mem == nil {
		return nil, device.CheckError(op, device.InvalidMemObject)
	}
	return m, nil
}

// CreateDevice creates a Device, preferring parallel backends
func CreateDevice() (*Device, error) {
	// Try OpenMP, then CUDA, then fall back to Serial
	backends := []Config{
		{Mode: "OpenMP"},
		{Mode: "CUDA", DeviceID: 0},
		{Mode: "Serial"},
	}

	var lastErr error
	for _, cfg := range backends {
		dev, err := NewDevice(cfg)
		if err == nil {
			klog.V(1).Infof("Created %s Device", dev.Mode())
			return dev, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to create any OCCA device: %w", lastErr)
}
