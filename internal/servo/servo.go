// Package servo drives the release actuators.
package servo

import (
	"fmt"
	"sync"
	"time"
)

// Driver sets actuator angles. No position is read back.
type Driver interface {
	SetAngle(index, degrees int) error
	Close() error
}

// Pulse timing for hobby servos at 50 Hz.
const (
	FrameHz         = 50
	DefaultMinPulse = 500 * time.Microsecond
	DefaultMaxPulse = 2500 * time.Microsecond
	MaxAngle        = 180
)

// PulseRange is the pulse width span matching 0 and MaxAngle.
type PulseRange struct {
	Min, Max time.Duration
}

// DefaultPulseRange returns the 500..2500 us span.
func DefaultPulseRange() PulseRange {
	return PulseRange{Min: DefaultMinPulse, Max: DefaultMaxPulse}
}

// Default actuator pins (BCM numbering), clear of the SPI0 lines and the
// default safety, LED and radio CE pins.
var DefaultPins = []int{5, 6, 26}

// pwmChannel maps each BCM pin go-rpio can put in hardware PWM mode to
// its PWM channel.
var pwmChannel = map[int]int{
	12: 0, 18: 0, 40: 0,
	13: 1, 19: 1, 41: 1, 45: 1,
}

// CheckHardwarePWM returns an error unless every pin can output hardware
// PWM on a channel no other pin in the list uses. Pins on one channel
// carry the same signal.
func CheckHardwarePWM(pins []int) error {
	owner := make(map[int]int)
	for _, p := range pins {
		ch, ok := pwmChannel[p]
		if !ok {
			return fmt.Errorf("servo: pin %d has no hardware PWM", p)
		}
		if prev, taken := owner[ch]; taken {
			return fmt.Errorf("servo: pins %d and %d share PWM channel %d", prev, p, ch)
		}
		owner[ch] = p
	}
	return nil
}

// PulseWidth maps an angle in [0, MaxAngle] linearly onto [min, max].
// Angles outside the range are clamped.
func PulseWidth(degrees int, min, max time.Duration) time.Duration {
	if degrees < 0 {
		degrees = 0
	}
	if degrees > MaxAngle {
		degrees = MaxAngle
	}
	return min + (max-min)*time.Duration(degrees)/MaxAngle
}

// Bank serializes commands per actuator and remembers the last angle
// commanded to each. A release and a reset on the same actuator never
// interleave mid-command; the later call wins.
type Bank struct {
	driver Driver
	locks  []sync.Mutex

	mu     sync.Mutex
	angles []int
}

// NewBank wraps driver for n actuators.
func NewBank(driver Driver, n int) *Bank {
	return &Bank{
		driver: driver,
		locks:  make([]sync.Mutex, n),
		angles: make([]int, n),
	}
}

// Len returns the number of actuators.
func (b *Bank) Len() int {
	return len(b.locks)
}

// SetAngle commands one actuator.
func (b *Bank) SetAngle(index, degrees int) error {
	if index < 0 || index >= len(b.locks) {
		return fmt.Errorf("servo: actuator %d out of range [0, %d)", index, len(b.locks))
	}
	b.locks[index].Lock()
	defer b.locks[index].Unlock()

	if err := b.driver.SetAngle(index, degrees); err != nil {
		return fmt.Errorf("actuator %d to %d: %w", index, degrees, err)
	}
	b.mu.Lock()
	b.angles[index] = degrees
	b.mu.Unlock()
	return nil
}

// Angles returns a copy of the last commanded angles.
func (b *Bank) Angles() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, len(b.angles))
	copy(out, b.angles)
	return out
}

// SetAll commands every actuator to the same angle, returning the first
// error after trying all of them.
func (b *Bank) SetAll(degrees int) error {
	var first error
	for i := range b.locks {
		if err := b.SetAngle(i, degrees); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close releases the driver.
func (b *Bank) Close() error {
	return b.driver.Close()
}
