package reactor

import "fmt"

// State of a Dispatcher.
type State int32

const (
	Idle State = iota
	Waiting
	Processing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
