package mqtt

import (
	"sync"

	"github.com/sweeney/payload-release/internal/logic"
)

// FakePublisher records published events for test assertions.
// Safe for concurrent use; read the fields only after publishing stops,
// or use the accessors.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all receiver events that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	notify chan logic.Event
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Notify makes Publish also send each event on ch (non-blocking).
func (f *FakePublisher) Notify(ch chan logic.Event) {
	f.mu.Lock()
	f.notify = ch
	f.mu.Unlock()
}

// Publish records the receiver event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	if f.PublishError != nil {
		err := f.PublishError
		f.mu.Unlock()
		return err
	}

	payload, err := FormatPayload(event)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	ch := f.notify
	f.mu.Unlock()

	if ch != nil {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventCount returns the number of published receiver events.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// SystemEventNames returns the Event field of each system event in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
