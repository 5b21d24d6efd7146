package hostsim

import (
	"fmt"
	"github.com/notargets/devbuf/device"
)

// Func is the body of a simulated kernel. args holds the bound arguments in
// slot order: *Memory for buffers, scalars as bound.
type Func func(args []interface{}) error

// Kernel is a simulated kernel whose body is a Go function.
type Kernel struct {
	name    string
	dev     *Device
	fn      Func
	args    []interface{}
	failArg map[int]device.Status
	runs    int
}

// BuildKernel registers fn as a kernel named name on the device.
func (d *Device) BuildKernel(name string, fn Func) *Kernel {
	return &Kernel{
		name:    name,
		dev:     d,
		fn:      fn,
		failArg: make(map[int]device.Status),
	}
}

func (k *Kernel) Name() string { return k.name }

// FailArg makes SetArg on slot index fail with code until cleared with
// device.Success.
func (k *Kernel) FailArg(index int, code device.Status) {
	if code == device.Success {
		delete(k.failArg, index)
		return
	}
	k.failArg[index] = code
}

func (k *Kernel) SetArg(index int, value interface{}) error {
	op := fmt.Sprintf("%s: set arg %d", k.name, index)
	if code, ok := k.failArg[index]; ok {
		return device.CheckError(op, code)
	}
	if index < 0 {
		return device.CheckError(op, device.InvalidArgIndex)
	}

	switch v := value.(type) {
	case *Memory:
		k.dev.mu.Lock()
		_, err := k.dev.lookup(op, v)
		k.dev.mu.Unlock()
		if err != nil {
			return err
		}
	case int32, int64, float32, float64:
	default:
		return device.CheckError(op, device.InvalidArgValue)
	}

	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	return nil
}

// Args returns the currently bound arguments in slot order.
func (k *Kernel) Args() []interface{} {
	out := make([]interface{}, len(k.args))
	copy(out, k.args)
	return out
}

// Runs returns how many times the kernel was launched.
func (k *Kernel) Runs() int { return k.runs }

func (k *Kernel) Run() error {
	for i, a := range k.args {
		if a == nil {
			return device.CheckError(fmt.Sprintf("%s: run (arg %d unset)", k.name, i), device.InvalidKernelArgs)
		}
	}
	k.runs++
	if k.fn == nil {
		return nil
	}
	if err := k.fn(k.Args()); err != nil {
		return fmt.Errorf("kernel %s failed: %w", k.name, err)
	}
	return nil
}
