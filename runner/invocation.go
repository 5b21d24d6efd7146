package runner

import (
	"github.com/notargets/devbuf/buffer"
	"github.com/notargets/devbuf/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Invocation binds the arguments of one kernel launch. Slots are numbered
// from zero in the order Bind is called. An Invocation is reused for the
// next launch after Reset.
//
// The chaining methods Input, Output, InOut and Scalar stop at the first
// failure and keep it for Err and Launch:
//
//	err := runner.NewInvocation(kernel).
//		Input(a).
//		Output(b).
//		Scalar(int32(n)).
//		Launch()
type Invocation struct {
	kernel  device.Kernel
	nextArg int
	err     error
}

// NewInvocation starts argument binding for kernel at slot zero.
func NewInvocation(kernel device.Kernel) *Invocation {
	return &Invocation{kernel: kernel}
}

// Kernel returns the kernel the invocation binds arguments for.
func (inv *Invocation) Kernel() device.Kernel { return inv.kernel }

// NumArgs returns the number of slots bound so far.
func (inv *Invocation) NumArgs() int { return inv.nextArg }

// Err returns the first failure of a chained bind, if any.
func (inv *Invocation) Err() error { return inv.err }

// Reset rewinds to slot zero for the next launch.
func (inv *Invocation) Reset() *Invocation {
	inv.nextArg = 0
	inv.err = nil
	return inv
}

// Bind places buf as required by dir and binds its device memory to the
// next slot. The slot advances only when binding succeeded.
func (inv *Invocation) Bind(dir Direction, buf buffer.Buffer) error {
	if buf == nil || buf.Placement() == nil {
		return errors.Errorf("kernel %s: nil buffer for argument %d", inv.kernel.Name(), inv.nextArg)
	}
	arg := Argument{Direction: dir, Buffer: buf}

	actions, err := PlanFor(dir, buf.Variant())
	if err != nil {
		return err
	}
	if err = inv.executeActions(actions, arg); err != nil {
		return err
	}

	mem, err := buf.Placement().DeviceMemory()
	if err != nil {
		return err
	}
	klog.V(3).Infof("kernel %s: binding %s argument %d (%d elements)",
		inv.kernel.Name(), dir, inv.nextArg, buf.Placement().Size())
	return inv.setArg(mem)
}

// BindArgs binds each argument in order, stopping at the first failure.
func (inv *Invocation) BindArgs(args ...Argument) error {
	for _, arg := range args {
		if err := inv.Bind(arg.Direction, arg.Buffer); err != nil {
			return err
		}
	}
	return nil
}

// BindScalar binds a scalar value (int32, int64, float32 or float64) to the
// next slot.
func (inv *Invocation) BindScalar(value interface{}) error {
	return inv.setArg(value)
}

func (inv *Invocation) setArg(value interface{}) error {
	if err := inv.kernel.SetArg(inv.nextArg, value); err != nil {
		return bindFailed(inv.kernel.Name(), inv.nextArg, err)
	}
	inv.nextArg++
	return nil
}

func (inv *Invocation) chain(f func() error) *Invocation {
	if inv.err == nil {
		inv.err = f()
	}
	return inv
}

// Input binds buf as an input argument.
func (inv *Invocation) Input(buf buffer.Buffer) *Invocation {
	return inv.chain(func() error { return inv.Bind(DirectionInput, buf) })
}

// Output binds buf as an output argument.
func (inv *Invocation) Output(buf buffer.Buffer) *Invocation {
	return inv.chain(func() error { return inv.Bind(DirectionOutput, buf) })
}

// InOut binds buf as an input-output argument.
func (inv *Invocation) InOut(buf buffer.Buffer) *Invocation {
	return inv.chain(func() error { return inv.Bind(DirectionInOut, buf) })
}

// Scalar binds a scalar argument.
func (inv *Invocation) Scalar(value interface{}) *Invocation {
	return inv.chain(func() error { return inv.BindScalar(value) })
}

// Launch runs the kernel with the bound arguments. It fails without running
// when a chained bind failed.
func (inv *Invocation) Launch() error {
	if inv.err != nil {
		return inv.err
	}
	if err := inv.kernel.Run(); err != nil {
		return errors.Wrapf(err, "launching kernel %s with %d arguments", inv.kernel.Name(), inv.nextArg)
	}
	return nil
}
