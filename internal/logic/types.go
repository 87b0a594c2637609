// Package logic contains pure business logic for the payload release rig.
// This package has NO external dependencies (no GPIO, radio, OS, or time.Sleep).
// Time is always injectable via time.Time or time.Duration parameters.
package logic

import (
	"fmt"
	"time"
)

// ArmState is the binary safety interlock decoded from the PWM input.
type ArmState string

const (
	ArmSafe  ArmState = "SAFE"
	ArmArmed ArmState = "ARMED"
)

// Pulse classification limits for the safety switch signal.
const (
	MinPulse     = 900 * time.Microsecond
	MaxPulse     = 2100 * time.Microsecond
	ArmThreshold = 1500 * time.Microsecond
)

// Actuator geometry.
const (
	NumActuators = 3
	IdleAngle    = 0
	ReleaseAngle = 180
)

// DefaultResetDelay is how long a fired actuator stays released.
const DefaultResetDelay = 2000 * time.Millisecond

// OpRelease is the only recognized command opcode.
const OpRelease byte = 0x01

// Action is the controller's decision for a received command.
type Action int

const (
	ActionRelease Action = iota
	ActionIgnoreSafe
	ActionIgnoreOpcode
)

func (a Action) String() string {
	switch a {
	case ActionRelease:
		return "RELEASE"
	case ActionIgnoreSafe:
		return "IGNORED_SAFE"
	case ActionIgnoreOpcode:
		return "IGNORED_OPCODE"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// EventType identifies a diagnostic event.
type EventType string

const (
	EventRelease       EventType = "RELEASE"
	EventIgnoredSafe   EventType = "IGNORED_SAFE"
	EventIgnoredOpcode EventType = "IGNORED_OPCODE"
	EventReset         EventType = "RESET"
	EventArmChange     EventType = "ARM_CHANGE"
)

// Event is a diagnostic observation emitted by the receiver.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Arm       ArmState
	// Actuator is the index involved, or -1 when none is.
	Actuator int
	Opcode   byte
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Releases      int
	IgnoredSafe   int
	IgnoredOpcode int
	Resets        int
	ArmChanges    int
}

// Add counts a single event.
func (c *EventCounts) Add(t EventType) {
	switch t {
	case EventRelease:
		c.Releases++
	case EventIgnoredSafe:
		c.IgnoredSafe++
	case EventIgnoredOpcode:
		c.IgnoredOpcode++
	case EventReset:
		c.Resets++
	case EventArmChange:
		c.ArmChanges++
	}
}
