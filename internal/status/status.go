// Package status provides a thread-safe status tracker for the release
// receiver. It is fed by the receiver's event stream and read by the HTTP
// handlers and system event publisher.
package status

import (
	"sync"
	"time"

	ring "github.com/zfjagann/golang-ring"

	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/reset"
)

// DefaultHistory is how many recent events the tracker keeps.
const DefaultHistory = 32

// Config contains daemon configuration for display.
type Config struct {
	SafetyMode   string
	RadioDriver  string
	ServoDriver  string
	PollMs       int64
	ResetDelayMs int64
	ResetPolicy  string
	StaleAfterMs int64
	Broker       string
	HTTPPort     string
}

// PulseStats counts safety pulses accepted and discarded by the decoder.
type PulseStats struct {
	Measured  uint64
	Discarded uint64
}

// Sources are live readers sampled on every Snapshot. Any may be nil.
type Sources struct {
	Arm     func() logic.ArmState
	Angles  func() []int
	Pending func() []reset.Entry
	Pulses  func() (measured, discarded uint64)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Arm           logic.ArmState
	Cursor        int
	Angles        []int
	Pending       []reset.Entry
	Pulses        PulseStats
	Counts        logic.EventCounts
	Recent        []logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind a mutex.
type Tracker struct {
	mu      sync.Mutex
	snap    Snapshot
	recent  ring.Ring
	sources Sources
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			Arm:       logic.ArmSafe,
			StartTime: startTime,
			Config:    cfg,
		},
	}
	t.recent.SetCapacity(DefaultHistory)
	return t
}

// SetSources installs live readers.
func (t *Tracker) SetSources(src Sources) {
	t.mu.Lock()
	t.sources = src
	t.mu.Unlock()
}

// Observe records one receiver event. Safe to call from any goroutine.
func (t *Tracker) Observe(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Counts.Add(e.Type)
	switch e.Type {
	case logic.EventRelease:
		t.snap.Cursor = (e.Actuator + 1) % logic.NumActuators
		t.snap.Arm = e.Arm
	case logic.EventArmChange, logic.EventIgnoredSafe, logic.EventIgnoredOpcode:
		t.snap.Arm = e.Arm
	}
	t.recent.Enqueue(e)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	// ring.Ring is not safe for concurrent readers.
	t.mu.Lock()
	s := t.snap
	src := t.sources
	values := t.recent.Values()
	t.mu.Unlock()

	s.Recent = make([]logic.Event, 0, len(values))
	for _, v := range values {
		if e, ok := v.(logic.Event); ok {
			s.Recent = append(s.Recent, e)
		}
	}

	if src.Arm != nil {
		s.Arm = src.Arm()
	}
	if src.Angles != nil {
		s.Angles = src.Angles()
	}
	if src.Pending != nil {
		s.Pending = src.Pending()
	}
	if src.Pulses != nil {
		s.Pulses.Measured, s.Pulses.Discarded = src.Pulses()
	}
	s.Now = time.Now()
	return s
}
