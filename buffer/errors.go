package buffer

import (
	"fmt"
	"github.com/notargets/devbuf/device"
	"github.com/pkg/errors"
)

// InvalidStateError reports an operation whose placement precondition does
// not hold, e.g. a transfer from a side that holds no data.
type InvalidStateError struct {
	Op    string
	State State
	Msg   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s(): %s (state %s)", e.Op, e.Msg, e.State)
}

// MismatchError reports a peer transfer between incompatible buffers.
type MismatchError struct {
	What           string // "element size" or "array size"
	Source, Target int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("copyTo: %s mismatch between source and target buffers %d vs %d",
		e.What, e.Source, e.Target)
}

// AllocationError reports a device allocation rejected by the runtime.
type AllocationError struct {
	Bytes int64
	Code  device.Status
	Err   error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocating %d bytes on device failed with %d: %s",
		e.Bytes, int32(e.Code), e.Code)
}

func (e *AllocationError) Unwrap() error { return e.Err }

func invalidState(op string, s State, format string, args ...interface{}) error {
	return errors.WithStack(&InvalidStateError{Op: op, State: s, Msg: fmt.Sprintf(format, args...)})
}

func mismatch(what string, source, target int) error {
	return errors.WithStack(&MismatchError{What: what, Source: source, Target: target})
}

func allocationFailed(bytes int64, err error) error {
	return errors.WithStack(&AllocationError{Bytes: bytes, Code: device.StatusOf(err), Err: err})
}

// IsInvalidState reports whether err is or wraps an *InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsMismatch reports whether err is or wraps a *MismatchError.
func IsMismatch(err error) bool {
	var target *MismatchError
	return errors.As(err, &target)
}
