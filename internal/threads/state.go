package threads

import "fmt"

// State is the scheduling state of a managed thread.
type State uint32

const (
	// StateNew means the thread was registered but has not started running.
	StateNew State = iota
	StateRunnable
	StateSleeping
	// StateWaiting means the thread waits on a monitor without a timeout.
	StateWaiting
	StateTimedWaiting
	StateParked
	StateTimedParked
	// StateBlocked means the thread waits to enter a monitor.
	StateBlocked
	StateTerminated

	// NumStates bounds the State enumeration.
	NumStates
)

var stateStrings = [...]string{
	StateNew:          "STATE_NEW",
	StateRunnable:     "STATE_RUNNABLE",
	StateSleeping:     "STATE_SLEEPING",
	StateWaiting:      "STATE_IN_OBJECT_WAIT",
	StateTimedWaiting: "STATE_IN_OBJECT_WAIT_TIMED",
	StateParked:       "STATE_PARKED",
	StateTimedParked:  "STATE_PARKED_TIMED",
	StateBlocked:      "STATE_BLOCKED_ON_MONITOR_ENTER",
	StateTerminated:   "STATE_TERMINATED",
}

func (s State) String() string {
	if s >= NumStates {
		return fmt.Sprintf("State(%d)", uint32(s))
	}
	return stateStrings[s]
}
