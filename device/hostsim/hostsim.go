// Package hostsim emulates an accelerator device in host memory.
//
// Allocations are plain byte slices. Host<->device transfers complete on the
// calling goroutine, device->device copies run on their own goroutine and
// signal completion through an Event, so code under test has to wait on the
// copy (or drain the queue) before the data is guaranteed to be in place.
// Every operation is counted and failures of any operation or kernel
// argument can be injected, which makes the simulator the device used by
// package tests.
package hostsim

import (
	"github.com/notargets/devbuf/device"
	"sync"
	"time"
	"unsafe"
)

// Options configures a simulated device.
type Options struct {
	// CopyLatency delays every device->device copy.
	CopyLatency time.Duration
}

// Stats counts the operations issued against a Device.
type Stats struct {
	Allocs         int
	AllocsWithCopy int
	Writes         int
	Reads          int
	Copies         int
	EventWaits     int
	Finishes       int
	Releases       int
	BytesToDevice  int64
	BytesToHost    int64
}

// Device is a host-memory device. It is safe for concurrent use.
type Device struct {
	opts Options

	mu     sync.Mutex
	nextID int
	live   map[int]*Memory
	stats  Stats
	faults map[string][]device.Status

	pending sync.WaitGroup
}

// Memory is a simulated device allocation.
type Memory struct {
	id   int
	data []byte
	dev  *Device
}

func (m *Memory) Bytes() int64 { return int64(len(m.data)) }

type event struct {
	dev  *Device
	done chan struct{}
	err  error
}

func (e *event) Wait() error {
	<-e.done
	e.dev.mu.Lock()
	e.dev.stats.EventWaits++
	e.dev.mu.Unlock()
	return e.err
}

// New creates a simulated device.
func New(opts Options) *Device {
	return &Device{
		opts:   opts,
		live:   make(map[int]*Memory),
		faults: make(map[string][]device.Status),
	}
}

func (d *Device) Mode() string { return "HostSim" }

// FailNext makes the next call of op fail with code. op is one of "malloc",
// "write", "read", "copy", "finish" and "release", or "wait" for the
// completion event of the next device->device copy. Calls queue up per op.
// A failing call changes nothing on the device.
func (d *Device) FailNext(op string, code device.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = append(d.faults[op], code)
}

// FailNextAlloc makes the next Malloc fail with code.
func (d *Device) FailNextAlloc(code device.Status) { d.FailNext("malloc", code) }

// fault pops the next injected failure of op. Callers hold d.mu.
func (d *Device) fault(op string) error {
	queue := d.faults[op]
	if len(queue) == 0 {
		return nil
	}
	d.faults[op] = queue[1:]
	return device.CheckError(op, queue[0])
}

// Stats returns a snapshot of the operation counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live returns the number of allocations not yet released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Device) Malloc(bytes int64, src []byte) (device.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("malloc"); err != nil {
		return nil, err
	}
	if bytes <= 0 {
		return nil, device.CheckError("malloc", device.InvalidBufferSize)
	}
	if src != nil && int64(len(src)) < bytes {
		return nil, device.CheckError("malloc", device.InvalidValue)
	}

	mem := &Memory{id: d.nextID, data: make([]byte, bytes), dev: d}
	d.nextID++
	if src != nil {
		copy(mem.data, src)
		d.stats.AllocsWithCopy++
		d.stats.BytesToDevice += bytes
	}
	d.stats.Allocs++
	d.live[mem.id] = mem
	return mem, nil
}

func (d *Device) Write(mem device.Memory, src []byte, blocking bool) (device.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("write"); err != nil {
		return nil, err
	}
	m, err := d.lookup("write", mem)
	if err != nil {
		return nil, err
	}
	if len(src) > len(m.data) {
		return nil, device.CheckError("write", device.InvalidValue)
	}
	copy(m.data, src)
	d.stats.Writes++
	d.stats.BytesToDevice += int64(len(src))
	return device.Done{}, nil
}

func (d *Device) Read(mem device.Memory, dst []byte, blocking bool) (device.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("read"); err != nil {
		return nil, err
	}
	m, err := d.lookup("read", mem)
	if err != nil {
		return nil, err
	}
	if len(dst) > len(m.data) {
		return nil, device.CheckError("read", device.InvalidValue)
	}
	copy(dst, m.data)
	d.stats.Reads++
	d.stats.BytesToHost += int64(len(dst))
	return device.Done{}, nil
}

func (d *Device) Copy(dst, src device.Memory, bytes int64) (device.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("copy"); err != nil {
		return nil, err
	}
	to, err := d.lookup("copy", dst)
	if err != nil {
		return nil, err
	}
	from, err := d.lookup("copy", src)
	if err != nil {
		return nil, err
	}
	if to == from {
		return nil, device.CheckError("copy", device.MemCopyOverlap)
	}
	if bytes > int64(len(to.data)) || bytes > int64(len(from.data)) {
		return nil, device.CheckError("copy", device.InvalidValue)
	}
	d.stats.Copies++

	ev := &event{dev: d, done: make(chan struct{}), err: d.fault("wait")}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		defer close(ev.done)
		if d.opts.CopyLatency > 0 {
			time.Sleep(d.opts.CopyLatency)
		}
		if ev.err == nil {
			copy(to.data[:bytes], from.data[:bytes])
		}
	}()
	return ev, nil
}

func (d *Device) Finish() error {
	d.pending.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("finish"); err != nil {
		return err
	}
	d.stats.Finishes++
	return nil
}

func (d *Device) Release(mem device.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("release"); err != nil {
		return err
	}
	m, err := d.lookup("release", mem)
	if err != nil {
		return err
	}
	delete(d.live, m.id)
	d.stats.Releases++
	return nil
}

// Peek returns a copy of the current device contents of mem without
// counting as a read.
func (d *Device) Peek(mem device.Memory) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.lookup("peek", mem)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// lookup resolves mem to a live allocation of this device. Callers hold d.mu.
func (d *Device) lookup(op string, mem device.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.dev != d {
		return nil, device.CheckError(op, device.InvalidMemObject)
	}
	if _, live := d.live[m.id]; !live {
		return nil, device.CheckError(op, device.InvalidMemObject)
	}
	return m, nil
}

// View reinterprets the device bytes of mem as a slice of T. It is meant for
// simulated kernels, which run on the host and may touch device memory
// directly.
func View[T any](mem device.Memory) []T {
	m, ok := mem.(*Memory)
	if !ok || len(m.data) == 0 {
		return nil
	}
	var zero T
	n := len(m.data) / int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(unsafe.Pointer(&m.data[0])), n)
}
