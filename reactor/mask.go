package reactor

import (
	"fmt"
	"strings"
)

// TriggerMode selects how the readiness set reports a descriptor.
// It is fixed when the descriptor is registered.
type TriggerMode uint8

const (
	LevelTriggered TriggerMode = iota
	EdgeTriggered
)

func (m TriggerMode) String() string {
	switch m {
	case LevelTriggered:
		return "lt"
	case EdgeTriggered:
		return "et"
	default:
		return fmt.Sprintf("TriggerMode(%d)", uint8(m))
	}
}

// ParseTriggerMode accepts "lt"/"level" and "et"/"edge", case insensitive.
func ParseTriggerMode(s string) (TriggerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lt", "level", "level-triggered":
		return LevelTriggered, nil
	case "et", "edge", "edge-triggered":
		return EdgeTriggered, nil
	}
	return LevelTriggered, fmt.Errorf("unknown trigger mode %q", s)
}

// Mask is both the interest set passed at registration and the
// event set observed in a ReadyBatch. Failure and PeerHangup are
// only ever observed; the OS reports them without being asked.
type Mask uint32

const (
	Readable Mask = 1 << iota
	Writable
	EdgeFlag
	Failure
	PeerHangup
)

func (m Mask) Has(other Mask) bool {
	return m&other == other
}

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	names := []struct {
		bit  Mask
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{EdgeFlag, "edge"},
		{Failure, "failure"},
		{PeerHangup, "hangup"},
	}
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Event is one entry of a ReadyBatch.
type Event struct {
	Fd   int
	Mask Mask
}

// ReadyBatch is the result of one Wait call. It aliases the readiness
// set's internal buffer and is only valid until the next Wait.
type ReadyBatch []Event
