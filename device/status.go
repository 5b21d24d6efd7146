package device

import (
	"fmt"
	"github.com/pkg/errors"
)

// Status is a native runtime status code. Values follow the OpenCL
// numbering, which OCCA and the host simulator reuse.
type Status int32

const (
	Success                        Status = 0
	MemObjectAllocationFailure     Status = -4
	OutOfResources                 Status = -5
	OutOfHostMemory                Status = -6
	MemCopyOverlap                 Status = -8
	InvalidValue                   Status = -30
	InvalidContext                 Status = -34
	InvalidCommandQueue            Status = -36
	InvalidMemObject               Status = -38
	InvalidKernel                  Status = -48
	InvalidArgIndex                Status = -49
	InvalidArgValue                Status = -50
	InvalidArgSize                 Status = -51
	InvalidKernelArgs              Status = -52
	InvalidEvent                   Status = -58
	InvalidBufferSize              Status = -61
	ExecStatusErrorForEventsInList Status = -14
)

var statusNames = map[Status]string{
	Success:                        "CL_SUCCESS",
	MemObjectAllocationFailure:     "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:                 "CL_OUT_OF_RESOURCES",
	OutOfHostMemory:                "CL_OUT_OF_HOST_MEMORY",
	MemCopyOverlap:                 "CL_MEM_COPY_OVERLAP",
	InvalidValue:                   "CL_INVALID_VALUE",
	InvalidContext:                 "CL_INVALID_CONTEXT",
	InvalidCommandQueue:            "CL_INVALID_COMMAND_QUEUE",
	InvalidMemObject:               "CL_INVALID_MEM_OBJECT",
	InvalidKernel:                  "CL_INVALID_KERNEL",
	InvalidArgIndex:                "CL_INVALID_ARG_INDEX",
	InvalidArgValue:                "CL_INVALID_ARG_VALUE",
	InvalidArgSize:                 "CL_INVALID_ARG_SIZE",
	InvalidKernelArgs:              "CL_INVALID_KERNEL_ARGS",
	InvalidEvent:                   "CL_INVALID_EVENT",
	InvalidBufferSize:              "CL_INVALID_BUFFER_SIZE",
	ExecStatusErrorForEventsInList: "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
}

// String translates the code to its runtime name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown status %d", int32(s))
}

// Error is a non-success status returned by a backend call.
type Error struct {
	Code Status
	Op   string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("device error %d: %s", int32(e.Code), e.Code)
	}
	return fmt.Sprintf("%s failed with %d: %s", e.Op, int32(e.Code), e.Code)
}

// CheckError returns nil for Success and an *Error carrying the code otherwise.
func CheckError(op string, s Status) error {
	if s == Success {
		return nil
	}
	return &Error{Code: s, Op: op}
}

// StatusOf extracts the native code from err. Errors that did not come from
// a backend report InvalidValue; nil reports Success.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return InvalidValue
}
