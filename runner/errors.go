package runner

import (
	"fmt"
	"github.com/notargets/devbuf/device"
	"github.com/pkg/errors"
)

// BindError reports a kernel argument the runtime refused to bind.
type BindError struct {
	Kernel string
	Slot   int
	Code   device.Status
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("kernel %s: binding argument %d failed with %d: %s",
		e.Kernel, e.Slot, int32(e.Code), e.Code)
}

func (e *BindError) Unwrap() error { return e.Err }

// PreconditionError reports a DeviceManaged buffer bound as input before its
// owner promoted it to the device.
type PreconditionError struct {
	Kernel string
	Slot   int
	Msg    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("kernel %s: argument %d: %s", e.Kernel, e.Slot, e.Msg)
}

func bindFailed(kernel string, slot int, err error) error {
	return errors.WithStack(&BindError{Kernel: kernel, Slot: slot, Code: device.StatusOf(err), Err: err})
}

func preconditionFailed(kernel string, slot int, msg string) error {
	return errors.WithStack(&PreconditionError{Kernel: kernel, Slot: slot, Msg: msg})
}
