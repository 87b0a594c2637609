// Package safety decodes the PWM safety switch and owns the shared arm
// state. The decoder goroutine is the only writer; every other goroutine
// reads through State().
package safety

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
)

// DefaultPollInterval is the busy-wait sampling period of the input.
const DefaultPollInterval = 50 * time.Microsecond

// Observer receives arm state transitions.
type Observer interface {
	Observe(logic.Event)
}

// Config controls optional decoder behavior.
type Config struct {
	// StaleAfter, when positive, makes State report SAFE once no valid
	// pulse has been measured for this long. Zero keeps the last valid
	// state forever.
	StaleAfter time.Duration

	// Observer, if set, is told about every arm state change.
	Observer Observer
}

// Switch holds the decoded arm state behind a mutex.
type Switch struct {
	mu        sync.Mutex
	state     logic.ArmState
	lastValid time.Time
	measured  uint64
	discarded uint64

	cfg     Config
	now     func() time.Time
	decoder logic.PulseDecoder
}

// New creates a Switch in the SAFE state.
func New(cfg Config) *Switch {
	return &Switch{
		state: logic.ArmSafe,
		cfg:   cfg,
		now:   time.Now,
	}
}

// State returns a snapshot of the arm state. The lock is released before
// returning so callers never hold it across actuator or radio work.
func (s *Switch) State() logic.ArmState {
	s.mu.Lock()
	state := s.state
	last := s.lastValid
	s.mu.Unlock()

	if s.cfg.StaleAfter > 0 && state == logic.ArmArmed {
		if last.IsZero() || s.now().Sub(last) > s.cfg.StaleAfter {
			return logic.ArmSafe
		}
	}
	return state
}

// Stats reports how many pulses were accepted and discarded.
func (s *Switch) Stats() (measured, discarded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measured, s.discarded
}

// apply classifies a measured width and commits it.
func (s *Switch) apply(width time.Duration) {
	state, ok := logic.Classify(width)

	s.mu.Lock()
	if !ok {
		s.discarded++
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = state
	s.lastValid = s.now()
	s.measured++
	s.mu.Unlock()

	if prev != state {
		log.Printf("safety: arm state %s -> %s (pulse=%v)", prev, state, width)
		if s.cfg.Observer != nil {
			s.cfg.Observer.Observe(logic.Event{
				Timestamp: s.now(),
				Type:      logic.EventArmChange,
				Arm:       state,
				Actuator:  -1,
			})
		}
	}
}

// Sample feeds one level reading. Exposed for tests and for callers that
// drive their own sampling loop.
func (s *Switch) Sample(level bool, at time.Duration) {
	if width, ok := s.decoder.Sample(level, at); ok {
		s.apply(width)
	}
}

// RunPolling samples in at the given interval until ctx is done. Read
// errors keep the previous level; only the first error of a streak is
// logged.
func (s *Switch) RunPolling(ctx context.Context, in gpio.Input, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	start := time.Now()
	failing := false

	log.Printf("safety: decoder ready (polling every %v)", interval)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		level, err := in.Level()
		if err != nil {
			if !failing {
				log.Printf("safety: input read error: %v", err)
				failing = true
			}
		} else {
			failing = false
			s.Sample(level, time.Since(start))
		}

		time.Sleep(interval)
	}
}

// RunEdges consumes kernel edge events until ctx is done.
func (s *Switch) RunEdges(ctx context.Context, src gpio.EdgeSource) {
	edges := src.Edges()
	log.Printf("safety: decoder ready (edge capture)")
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-edges:
			if width, ok := s.decoder.Edge(e.Rising, e.At); ok {
				s.apply(width)
			}
		}
	}
}
