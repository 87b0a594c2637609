// Package reset returns released actuators to idle after a fixed delay.
//
// Pending resets live in a small queue keyed by actuator index and are
// serviced by one goroutine (Run). Scheduling an index that is already
// pending either replaces its deadline or keeps the earlier one,
// depending on Policy, so there is never more than one entry per
// actuator.
package reset

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/payload-release/internal/logic"
)

// Policy decides what happens when an index is scheduled while pending.
type Policy string

const (
	// PolicyReplace moves the deadline to now+delay.
	PolicyReplace Policy = "replace"
	// PolicyCoalesce keeps the existing, earlier deadline.
	PolicyCoalesce Policy = "coalesce"
)

// ParsePolicy validates a policy name. Empty means PolicyReplace.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyCoalesce:
		return PolicyCoalesce, nil
	}
	return "", fmt.Errorf("unknown reset policy %q (want %q or %q)", s, PolicyReplace, PolicyCoalesce)
}

// Actuator is the part of servo.Bank the scheduler needs.
type Actuator interface {
	SetAngle(index, degrees int) error
}

// Observer receives a RESET event for every actuator returned to idle.
type Observer interface {
	Observe(logic.Event)
}

// Config controls a Scheduler.
type Config struct {
	Delay    time.Duration
	Policy   Policy
	Observer Observer
}

// Entry is one outstanding reset.
type Entry struct {
	Index    int
	Deadline time.Time
}

// Scheduler is the keyed deferred reset queue.
type Scheduler struct {
	act Actuator
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	pending map[int]time.Time
	fired   uint64
	wake    chan struct{}
}

// New creates a Scheduler. A zero Delay uses logic.DefaultResetDelay.
func New(act Actuator, cfg Config) *Scheduler {
	if cfg.Delay <= 0 {
		cfg.Delay = logic.DefaultResetDelay
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyReplace
	}
	return &Scheduler{
		act:     act,
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[int]time.Time),
		wake:    make(chan struct{}, 1),
	}
}

// Delay returns the configured reset delay.
func (s *Scheduler) Delay() time.Duration {
	return s.cfg.Delay
}

// Schedule registers a reset of index at now+Delay and returns at once.
func (s *Scheduler) Schedule(index int) {
	s.ScheduleAt(index, s.now())
}

// ScheduleAt registers a reset of index at base+Delay.
func (s *Scheduler) ScheduleAt(index int, base time.Time) {
	deadline := base.Add(s.cfg.Delay)

	s.mu.Lock()
	if prev, ok := s.pending[index]; ok && s.cfg.Policy == PolicyCoalesce && prev.Before(deadline) {
		deadline = prev
	}
	s.pending[index] = deadline
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns outstanding resets ordered by index.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.pending))
	for i, d := range s.pending {
		out = append(out, Entry{Index: i, Deadline: d})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// Fired returns how many resets have been commanded.
func (s *Scheduler) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Tick commands every reset whose deadline is at or before now and
// returns the indices in order.
func (s *Scheduler) Tick(now time.Time) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []int
	for i, d := range s.pending {
		if !d.After(now) {
			due = append(due, i)
		}
	}
	sort.Ints(due)
	for _, i := range due {
		delete(s.pending, i)
		s.fire(i, now)
	}
	return due
}

// Flush commands every pending reset immediately.
func (s *Scheduler) Flush() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]int, 0, len(s.pending))
	for i := range s.pending {
		due = append(due, i)
	}
	sort.Ints(due)
	now := s.now()
	for _, i := range due {
		delete(s.pending, i)
		s.fire(i, now)
	}
	return due
}

// fire must be called with s.mu held.
func (s *Scheduler) fire(index int, now time.Time) {
	s.fired++
	if err := s.act.SetAngle(index, logic.IdleAngle); err != nil {
		log.Printf("reset: actuator %d: %v", index, err)
	} else {
		log.Printf("actuator %d reset to %d", index, logic.IdleAngle)
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer.Observe(logic.Event{
			Timestamp: now,
			Type:      logic.EventReset,
			Actuator:  index,
		})
	}
}

// next returns the earliest deadline.
func (s *Scheduler) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	found := false
	for _, d := range s.pending {
		if !found || d.Before(earliest) {
			earliest = d
			found = true
		}
	}
	return earliest, found
}

// Run services the queue until ctx is done. It is the only goroutine
// that fires resets on its own.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		var timer *time.Timer
		var expired <-chan time.Time
		if deadline, ok := s.next(); ok {
			wait := deadline.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-expired:
			s.Tick(s.now())
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
