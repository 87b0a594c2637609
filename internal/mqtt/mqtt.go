// Package mqtt publishes receiver diagnostics to a local MQTT broker,
// with abstraction for testing. It is not a radio downlink; nothing here
// is transmitted to the ground unit.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/payload-release/internal/logic"
)

// Topic is the MQTT topic for receiver events.
const Topic = "payload/receiver/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "payload/receiver/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a receiver event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Receiver ReceiverPayload `json:"receiver"`
}

// ReceiverPayload contains the event details.
type ReceiverPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Arm       string `json:"arm,omitempty"`
	Actuator  *int   `json:"actuator,omitempty"`
	Opcode    string `json:"opcode,omitempty"`
}

// FormatPayload creates the JSON payload for a receiver event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := ReceiverPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Type),
		Arm:       string(event.Arm),
	}
	if event.Actuator >= 0 {
		idx := event.Actuator
		p.Actuator = &idx
	}
	switch event.Type {
	case logic.EventRelease, logic.EventIgnoredSafe, logic.EventIgnoredOpcode:
		p.Opcode = fmt.Sprintf("0x%02x", event.Opcode)
	}
	return json.Marshal(Payload{Receiver: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
