// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Input reads a single digital line.
type Input interface {
	// Level returns the raw line level (true = high).
	Level() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Output drives a single digital line.
type Output interface {
	// Set drives the line high (true) or low.
	Set(on bool) error

	// Toggle inverts the current output level.
	Toggle() error

	// Close releases GPIO resources.
	Close() error
}

// Edge is a level transition reported by the kernel.
type Edge struct {
	Rising bool
	// At is the kernel timestamp, a monotonic offset from boot.
	At time.Duration
}

// EdgeSource delivers edges on a line as they happen.
type EdgeSource interface {
	Edges() <-chan Edge
	Close() error
}

// Pull selects the bias of an input line.
type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// Default pin assignments (BCM numbering).
const (
	DefaultPinSafety = 13 // PWM safety switch input
	DefaultPinLED    = 21 // acknowledgement indicator
	DefaultPinButton = 15 // ground unit release button
)
