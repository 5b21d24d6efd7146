// File: runner/binding.go
// Per-argument placement plans: which tracker operations a declared
// direction requires before the device handle can be bound.

package runner

import (
	"fmt"
	"github.com/notargets/devbuf/buffer"
	"github.com/pkg/errors"
)

// ActionFlags represents the placement operations to perform for an argument
type ActionFlags int

const (
	// No action
	NoAction ActionFlags = 0
	// Fail unless the buffer is already on the device
	RequireDevice ActionFlags = 1 << iota
	// Drop the host copy before the device allocation is made
	DropHostBefore
	// Transfer the host copy when the buffer is not on the device
	TransferIfAbsent
	// Allocate uninitialized device memory when the buffer is not on the device
	MaterializeIfAbsent
	// Drop the host copy once the data is on the device
	DropHostAfter
	// Check the buffer ended up on the device only
	AssertDeviceOnly
)

// Argument is one buffer argument of a kernel invocation
type Argument struct {
	Direction Direction
	Buffer    buffer.Buffer
}

// Input declares buf as an input argument
func Input(buf buffer.Buffer) Argument { return Argument{Direction: DirectionInput, Buffer: buf} }

// Output declares buf as an output argument
func Output(buf buffer.Buffer) Argument { return Argument{Direction: DirectionOutput, Buffer: buf} }

// InOut declares buf as an input-output argument
func InOut(buf buffer.Buffer) Argument { return Argument{Direction: DirectionInOut, Buffer: buf} }

type planKey struct {
	dir     Direction
	variant buffer.Variant
}

// plans is the single source of truth for argument placement
var plans = map[planKey]ActionFlags{
	{DirectionInput, buffer.HostManaged}:  TransferIfAbsent | DropHostAfter,
	{DirectionInOut, buffer.HostManaged}:  TransferIfAbsent | DropHostAfter,
	{DirectionOutput, buffer.HostManaged}: DropHostBefore | MaterializeIfAbsent | AssertDeviceOnly,

	{DirectionInput, buffer.DeviceManaged}:  RequireDevice,
	{DirectionInOut, buffer.DeviceManaged}:  RequireDevice,
	{DirectionOutput, buffer.DeviceManaged}: MaterializeIfAbsent,
}

// PlanFor returns the actions binding a buffer of variant v as dir performs
func PlanFor(dir Direction, v buffer.Variant) (ActionFlags, error) {
	actions, ok := plans[planKey{dir, v}]
	if !ok {
		return NoAction, fmt.Errorf("no binding plan for %s argument of %s buffer", dir, v)
	}
	return actions, nil
}

// HasAction checks if a specific action is set
func (a ActionFlags) HasAction(action ActionFlags) bool {
	return a&action != 0
}

// executeActions drives the buffer's tracker into the state the plan
// requires. Actions run in a fixed order regardless of flag order.
func (inv *Invocation) executeActions(actions ActionFlags, arg Argument) error {
	t := arg.Buffer.Placement()

	if actions.HasAction(RequireDevice) && !t.IsOnDevice() {
		return preconditionFailed(inv.kernel.Name(), inv.nextArg,
			fmt.Sprintf("need to TransferToDevice() before binding as %s", arg.Direction))
	}

	if actions.HasAction(DropHostBefore) && t.IsOnHost() {
		if err := t.ReleaseHost(); err != nil {
			return err
		}
	}

	if actions.HasAction(TransferIfAbsent) && !t.IsOnDevice() {
		if err := t.TransferToDevice(); err != nil {
			return err
		}
	}

	if actions.HasAction(MaterializeIfAbsent) && !t.IsOnDevice() {
		if err := t.MaterializeOnDevice(); err != nil {
			return err
		}
	}

	if actions.HasAction(DropHostAfter) && t.IsOnHost() {
		if err := t.ReleaseHost(); err != nil {
			return err
		}
	}

	if actions.HasAction(AssertDeviceOnly) && !(t.IsOnDevice() && !t.IsOnHost()) {
		return errors.Errorf("kernel %s: %s argument %d expected on device only, state %s",
			inv.kernel.Name(), arg.Direction, inv.nextArg, t.State())
	}

	return nil
}
