package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/payload-release/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Arm           string         `json:"arm"`
	NextActuator  int            `json:"next_actuator"`
	Actuators     []ActuatorJSON `json:"actuators"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Pulses        PulsesJSON     `json:"pulses"`
	Recent        []EventJSON    `json:"recent_events,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ActuatorJSON is one actuator's commanded angle and reset state.
type ActuatorJSON struct {
	Index        int   `json:"index"`
	Angle        int   `json:"angle"`
	ResetPending bool  `json:"reset_pending"`
	ResetInMs    int64 `json:"reset_in_ms,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Releases      int `json:"releases"`
	IgnoredSafe   int `json:"ignored_safe"`
	IgnoredOpcode int `json:"ignored_opcode"`
	Resets        int `json:"resets"`
	ArmChanges    int `json:"arm_changes"`
}

// PulsesJSON reports safety decoder statistics.
type PulsesJSON struct {
	Measured  uint64 `json:"measured"`
	Discarded uint64 `json:"discarded"`
}

// EventJSON is the JSON representation of a receiver event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Arm       string `json:"arm,omitempty"`
	Actuator  *int   `json:"actuator,omitempty"`
	Opcode    string `json:"opcode,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SafetyMode   string `json:"safety_mode"`
	RadioDriver  string `json:"radio_driver"`
	ServoDriver  string `json:"servo_driver"`
	PollMs       int64  `json:"poll_ms"`
	ResetDelayMs int64  `json:"reset_delay_ms"`
	ResetPolicy  string `json:"reset_policy"`
	StaleAfterMs int64  `json:"stale_after_ms,omitempty"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
}

// EventToJSON converts an event for display or publishing.
func EventToJSON(e logic.Event) EventJSON {
	out := EventJSON{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(e.Type),
		Arm:       string(e.Arm),
	}
	if e.Actuator >= 0 {
		idx := e.Actuator
		out.Actuator = &idx
	}
	switch e.Type {
	case logic.EventRelease, logic.EventIgnoredSafe, logic.EventIgnoredOpcode:
		out.Opcode = fmt.Sprintf("0x%02x", e.Opcode)
	}
	return out
}

func buildActuators(snap Snapshot) []ActuatorJSON {
	out := make([]ActuatorJSON, logic.NumActuators)
	for i := range out {
		out[i].Index = i
		if i < len(snap.Angles) {
			out[i].Angle = snap.Angles[i]
		}
	}
	for _, p := range snap.Pending {
		if p.Index < 0 || p.Index >= len(out) {
			continue
		}
		out[p.Index].ResetPending = true
		if left := p.Deadline.Sub(snap.Now); left > 0 {
			out[p.Index].ResetInMs = left.Milliseconds()
		}
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	arm := string(snap.Arm)
	if arm == "" {
		arm = "UNKNOWN"
	}

	inner := StatusInner{
		Arm:           arm,
		NextActuator:  snap.Cursor,
		Actuators:     buildActuators(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Releases:      snap.Counts.Releases,
			IgnoredSafe:   snap.Counts.IgnoredSafe,
			IgnoredOpcode: snap.Counts.IgnoredOpcode,
			Resets:        snap.Counts.Resets,
			ArmChanges:    snap.Counts.ArmChanges,
		},
		Pulses: PulsesJSON{
			Measured:  snap.Pulses.Measured,
			Discarded: snap.Pulses.Discarded,
		},
		Config: ConfigJSON{
			SafetyMode:   snap.Config.SafetyMode,
			RadioDriver:  snap.Config.RadioDriver,
			ServoDriver:  snap.Config.ServoDriver,
			PollMs:       snap.Config.PollMs,
			ResetDelayMs: snap.Config.ResetDelayMs,
			ResetPolicy:  snap.Config.ResetPolicy,
			StaleAfterMs: snap.Config.StaleAfterMs,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
		},
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
// Recent events are included newest last.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	for _, e := range snap.Recent {
		inner.Recent = append(inner.Recent, EventToJSON(e))
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
