package servo

import (
	"sync"
	"time"
)

// Command is one recorded SetAngle call.
type Command struct {
	Index   int
	Degrees int
	At      time.Time
}

// Fake records commands for test assertions. Safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	Commands []Command
	Closed   bool

	// Err, if set, is returned by SetAngle (the command is not recorded).
	Err error

	notify chan Command
}

// NewFake creates a Fake. If notify is non-nil every recorded command is
// also sent on it (non-blocking).
func NewFake(notify chan Command) *Fake {
	return &Fake{notify: notify}
}

func (f *Fake) SetAngle(index, degrees int) error {
	f.mu.Lock()
	if f.Err != nil {
		err := f.Err
		f.mu.Unlock()
		return err
	}
	c := Command{Index: index, Degrees: degrees, At: time.Now()}
	f.Commands = append(f.Commands, c)
	f.mu.Unlock()

	if f.notify != nil {
		select {
		case f.notify <- c:
		default:
		}
	}
	return nil
}

// SetErr sets or clears the injected error.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// History returns a copy of recorded commands.
func (f *Fake) History() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.Commands))
	copy(out, f.Commands)
	return out
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
