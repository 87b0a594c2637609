// Package ground is the ground unit's transmit loop: one RELEASE packet
// per button release, no retries.
package ground

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/radio"
)

// Default timing.
const (
	DefaultPoll   = 50 * time.Millisecond
	DefaultSettle = 100 * time.Millisecond
)

// Config controls a Transmitter.
type Config struct {
	Poll     time.Duration // button polling period
	Settle   time.Duration // pause after each send
	Debounce time.Duration
}

// Stats counts transmit outcomes.
type Stats struct {
	Sent   int
	Failed int
}

// Transmitter watches the button and sends commands.
type Transmitter struct {
	radio  radio.Transport
	button gpio.Input
	edge   *logic.ButtonEdge
	cfg    Config
	sleep  func(time.Duration)

	mu    sync.Mutex
	stats Stats
}

// New creates a Transmitter. The radio should already be set up and
// listening.
func New(r radio.Transport, button gpio.Input, cfg Config) *Transmitter {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	return &Transmitter{
		radio:  r,
		button: button,
		edge:   logic.NewButtonEdge(cfg.Debounce),
		cfg:    cfg,
		sleep:  time.Sleep,
	}
}

// Stats returns a copy of the counters.
func (t *Transmitter) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Run polls the button until ctx is done.
func (t *Transmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Poll)
	defer ticker.Stop()

	log.Printf("ground: ready (poll=%v)", t.cfg.Poll)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := t.Step(now); err != nil {
				log.Printf("ground: %v", err)
			}
		}
	}
}

// Step reads the button once and sends on a release. It reports whether
// a send was attempted.
func (t *Transmitter) Step(now time.Time) (bool, error) {
	level, err := t.button.Level()
	if err != nil {
		return false, fmt.Errorf("read button: %w", err)
	}
	if !t.edge.Process(level, now) {
		return false, nil
	}
	return true, t.Send()
}

// Send transmits one RELEASE packet, restoring listening mode whether or
// not it was acknowledged. An unacknowledged send is returned as an
// error and is not retried.
func (t *Transmitter) Send() error {
	if err := t.radio.SetListening(false); err != nil {
		return fmt.Errorf("stop listening: %w", err)
	}

	err := t.radio.Send(radio.NewPacket(logic.OpRelease))
	t.mu.Lock()
	if err != nil {
		t.stats.Failed++
	} else {
		t.stats.Sent++
	}
	t.mu.Unlock()

	if lerr := t.radio.SetListening(true); lerr != nil {
		return fmt.Errorf("resume listening: %w", lerr)
	}
	t.sleep(t.cfg.Settle)

	if err != nil {
		return fmt.Errorf("send release: %w", err)
	}
	log.Printf("sent release command")
	return nil
}
