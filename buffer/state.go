package buffer

// State is the placement of a buffer's data.
//
//	Absent     no host copy, no device allocation (transient)
//	HostOnly   host copy only
//	DeviceOnly device allocation only
//	Synced     both, device copy matches the host copy
//	Dirty      both, device copy may differ from the host copy
type State uint8

const (
	Absent State = iota
	HostOnly
	DeviceOnly
	Synced
	Dirty
	numStates
)

var stateNames = [numStates]string{"Absent", "HostOnly", "DeviceOnly", "Synced", "Dirty"}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "State(?)"
}

func (s State) OnHost() bool { return s == HostOnly || s == Synced || s == Dirty }

func (s State) OnDevice() bool { return s == DeviceOnly || s == Synced || s == Dirty }

// DeviceDirty is only ever true while the data is on both sides.
func (s State) DeviceDirty() bool { return s == Dirty }

type event uint8

const (
	allocDevice   event = iota // device allocation created, with copy when on host
	upload                     // host -> device write over the full extent
	download                   // device -> host read over the full extent
	releaseHost                // host storage dropped
	releaseDevice              // device allocation released
	markStale                  // device written through a side channel
	attachHost                 // owner supplied fresh host storage, contents undefined
	numEvents
)

var eventNames = [numEvents]string{
	"allocDevice", "upload", "download", "releaseHost", "releaseDevice", "markStale", "attachHost",
}

func (e event) String() string { return eventNames[e] }

const invalid = numStates

// transitions[from][event] is the resulting state, or invalid.
var transitions = func() (t [numStates][numEvents]State) {
	for s := range t {
		for e := range t[s] {
			t[s][e] = invalid
		}
	}

	t[Absent][allocDevice] = DeviceOnly
	t[HostOnly][allocDevice] = Synced

	t[Synced][upload] = Synced
	t[Dirty][upload] = Synced

	t[Synced][download] = Synced
	t[Dirty][download] = Synced

	t[HostOnly][releaseHost] = Absent
	t[Synced][releaseHost] = DeviceOnly
	t[Dirty][releaseHost] = DeviceOnly

	t[DeviceOnly][releaseDevice] = Absent
	t[Synced][releaseDevice] = HostOnly
	t[Dirty][releaseDevice] = HostOnly

	// with no host copy there is nothing for the device copy to be stale against
	t[DeviceOnly][markStale] = DeviceOnly
	t[Synced][markStale] = Dirty
	t[Dirty][markStale] = Dirty

	// fresh host storage holds no valid data until the next download
	t[DeviceOnly][attachHost] = Dirty
	return
}()

// next returns the state reached from s on e.
func (s State) next(e event) (State, bool) {
	if s >= numStates {
		return invalid, false
	}
	n := transitions[s][e]
	return n, n != invalid
}
