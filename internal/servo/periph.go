package servo

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// Periph drives servos with periph's PWM output on any capable pin.
type Periph struct {
	pins   []gpio.PinIO
	pulses PulseRange
}

// NewPeriph opens the named pins (e.g. "GPIO5").
func NewPeriph(names []string, pr PulseRange) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	p := &Periph{pulses: pr}
	for _, name := range names {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("servo pin %q not found", name)
		}
		p.pins = append(p.pins, pin)
	}
	return p, nil
}

// duty converts an angle to a PWM duty cycle at FrameHz.
func (p *Periph) duty(degrees int) gpio.Duty {
	w := PulseWidth(degrees, p.pulses.Min, p.pulses.Max)
	period := int64(1e6 / FrameHz)
	return gpio.Duty(int64(gpio.DutyMax) * w.Microseconds() / period)
}

// SetAngle commands the servo on pins[index].
func (p *Periph) SetAngle(index, degrees int) error {
	if index < 0 || index >= len(p.pins) {
		return fmt.Errorf("servo: no pin for actuator %d", index)
	}
	if err := p.pins[index].PWM(p.duty(degrees), FrameHz*physic.Hertz); err != nil {
		return fmt.Errorf("pwm %s: %w", p.pins[index], err)
	}
	return nil
}

// Close stops PWM on every pin.
func (p *Periph) Close() error {
	var errs []error
	for _, pin := range p.pins {
		if err := pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", pin, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
