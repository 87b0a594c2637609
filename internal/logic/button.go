package logic

import "time"

// ButtonEdge detects debounced button releases on the ground unit.
// The button sits on a pull-up input: pressed reads low, released reads
// high. A release is a stable transition from low to high.
type ButtonEdge struct {
	debounce time.Duration

	stable       bool
	pending      bool
	pendingSince time.Time
	hasPending   bool
	baselined    bool
}

// NewButtonEdge creates a detector. A zero debounce reports an edge on
// the first sample that differs from the stable level.
func NewButtonEdge(debounce time.Duration) *ButtonEdge {
	return &ButtonEdge{debounce: debounce}
}

// Process takes a raw level sample and reports whether it completes a
// button release.
func (b *ButtonEdge) Process(level bool, now time.Time) bool {
	if !b.baselined {
		// Idle level of the line, taken on the first read.
		b.stable = level
		b.baselined = true
		return false
	}

	if level == b.stable {
		b.hasPending = false
		return false
	}

	if !b.hasPending || b.pending != level {
		b.pending = level
		b.pendingSince = now
		b.hasPending = true
	}

	if now.Sub(b.pendingSince) < b.debounce {
		return false
	}

	b.stable = level
	b.hasPending = false
	return level
}

// Pressed reports whether the stable level is the pressed (low) level.
func (b *ButtonEdge) Pressed() bool {
	return b.baselined && !b.stable
}
