package runner

// Direction indicates how a kernel uses an argument's data
type Direction int

const (
	// DirectionInput arguments are read by the kernel; their host copy is
	// moved to the device and dropped from the host.
	DirectionInput Direction = iota
	// DirectionOutput arguments are written by the kernel; any host copy is
	// dropped before binding since the kernel overwrites it.
	DirectionOutput
	// DirectionInOut arguments are read and written; binding treats them as
	// input and the caller reads results back with TransferToHost.
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInOut:
		return "inout"
	default:
		return "unknown"
	}
}
