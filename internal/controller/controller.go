// Package controller is the air-side command loop. It polls the radio,
// applies the arm interlock to each command and fires actuators in strict
// round-robin order, handing each fired actuator to the reset scheduler.
package controller

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/radio"
)

// DefaultPoll is the radio polling period.
const DefaultPoll = 10 * time.Millisecond

// ArmReader returns a snapshot of the arm state.
type ArmReader interface {
	State() logic.ArmState
}

// Actuators commands actuator angles.
type Actuators interface {
	SetAngle(index, degrees int) error
}

// Resetter accepts deferred resets. Schedule must not block on the delay.
type Resetter interface {
	Schedule(index int)
}

// Observer receives one event per handled command.
type Observer interface {
	Observe(logic.Event)
}

// Deps are the collaborators a Controller drives. LED and Observer may be nil.
type Deps struct {
	Radio     radio.Transport
	Arm       ArmReader
	Actuators Actuators
	Resets    Resetter
	LED       gpio.Output
	Observer  Observer
}

// Controller owns the release cursor. It is not safe for concurrent use;
// Run and Handle belong to one goroutine.
type Controller struct {
	deps Deps
	seq  *logic.Sequencer
	poll time.Duration
	now  func() time.Time
}

// New creates a Controller with the cursor at actuator 0. A zero poll
// uses DefaultPoll.
func New(deps Deps, poll time.Duration) *Controller {
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Controller{
		deps: deps,
		seq:  logic.NewSequencer(logic.NumActuators),
		poll: poll,
		now:  time.Now,
	}
}

// Cursor returns the actuator that fires on the next accepted release.
func (c *Controller) Cursor() int {
	return c.seq.Cursor()
}

// Run polls the radio until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	log.Printf("controller: listening (poll=%v)", c.poll)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Step()
		}
	}
}

// Step handles at most one pending packet. It reports whether a packet
// was handled, and the resulting action.
func (c *Controller) Step() (logic.Action, bool) {
	if !c.deps.Radio.HasPending() {
		return 0, false
	}
	p, err := c.deps.Radio.Receive()
	if err != nil {
		log.Printf("controller: receive: %v", err)
		return 0, false
	}
	return c.Handle(p), true
}

// Handle applies one command against a fresh arm snapshot.
func (c *Controller) Handle(p radio.Packet) logic.Action {
	op := p.Opcode()
	arm := c.deps.Arm.State()
	action := logic.Decide(op, arm)

	event := logic.Event{
		Timestamp: c.now(),
		Arm:       arm,
		Actuator:  -1,
		Opcode:    op,
	}

	switch action {
	case logic.ActionRelease:
		idx := c.release()
		log.Printf("releasing actuator %d (arm=%s)", idx, arm)
		event.Type = logic.EventRelease
		event.Actuator = idx
	case logic.ActionIgnoreSafe:
		log.Printf("ignored command 0x%02x (arm=%s)", op, arm)
		event.Type = logic.EventIgnoredSafe
	case logic.ActionIgnoreOpcode:
		log.Printf("ignored unknown opcode 0x%02x (arm=%s)", op, arm)
		event.Type = logic.EventIgnoredOpcode
	}

	if c.deps.Observer != nil {
		c.deps.Observer.Observe(event)
	}
	return action
}

// release fires the actuator under the cursor and advances it. The reset
// is registered before the actuator moves so an expiring reset for the
// same index cannot land after the new command.
func (c *Controller) release() int {
	if c.deps.LED != nil {
		if err := c.deps.LED.Toggle(); err != nil {
			log.Printf("controller: led: %v", err)
		}
	}

	idx := c.seq.Next()
	c.deps.Resets.Schedule(idx)
	if err := c.deps.Actuators.SetAngle(idx, logic.ReleaseAngle); err != nil {
		log.Printf("controller: %v", err)
	}
	return idx
}
