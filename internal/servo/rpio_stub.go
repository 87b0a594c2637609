//go:build !linux

package servo

import "errors"

// Rpio is not available on non-Linux platforms.
type Rpio struct{}

// NewRpio returns an error on non-Linux platforms.
func NewRpio(pins []int, pr PulseRange) (*Rpio, error) {
	return nil, errors.New("servo: rpio requires Linux")
}

func (r *Rpio) SetAngle(index, degrees int) error {
	return errors.New("servo: rpio not supported")
}

func (r *Rpio) Close() error { return nil }
