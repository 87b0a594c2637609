//go:build linux

package servo

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// cycleLen is the PWM range per 20ms frame, giving 1us resolution.
const cycleLen = 1e6 / FrameHz

// Rpio drives servos on the BCM hardware PWM channels through
// /dev/gpiomem. There are two channels, so at most two actuators.
type Rpio struct {
	mu     sync.Mutex
	pins   []rpio.Pin
	pulses PulseRange
}

// NewRpio maps GPIO memory and configures each pin for PWM at FrameHz.
func NewRpio(pins []int, pr PulseRange) (*Rpio, error) {
	if err := CheckHardwarePWM(pins); err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpiomem: %w", err)
	}
	r := &Rpio{pulses: pr}
	for _, n := range pins {
		pin := rpio.Pin(n)
		pin.Mode(rpio.Pwm)
		pin.Freq(FrameHz * cycleLen)
		r.pins = append(r.pins, pin)
	}
	return r, nil
}

// dutyLen converts an angle to PWM counts out of cycleLen.
func dutyLen(degrees int, pr PulseRange) uint32 {
	return uint32(PulseWidth(degrees, pr.Min, pr.Max).Microseconds())
}

// SetAngle commands the servo on pins[index].
func (r *Rpio) SetAngle(index, degrees int) error {
	if index < 0 || index >= len(r.pins) {
		return fmt.Errorf("servo: no pin for actuator %d", index)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins[index].DutyCycle(dutyLen(degrees, r.pulses), cycleLen)
	return nil
}

// Close stops output and unmaps GPIO memory.
func (r *Rpio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pin := range r.pins {
		pin.DutyCycle(0, cycleLen)
	}
	return rpio.Close()
}
