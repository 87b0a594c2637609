package logic

import "time"

// Classify maps a measured pulse width to an arm state.
// ok is false when the width is outside [MinPulse, MaxPulse]; such
// measurements are noise and must not change the arm state.
func Classify(width time.Duration) (state ArmState, ok bool) {
	if width < MinPulse || width > MaxPulse {
		return "", false
	}
	if width > ArmThreshold {
		return ArmArmed, true
	}
	return ArmSafe, true
}

// PulseDecoder turns a stream of sampled levels into pulse widths.
// Timestamps are monotonic offsets from any fixed origin.
// Not safe for concurrent use.
type PulseDecoder struct {
	prev    bool
	seeded  bool
	inPulse bool
	riseAt  time.Duration
}

// Sample feeds one level reading taken at the given time. On a falling
// edge that closes an observed pulse it returns the pulse width.
func (d *PulseDecoder) Sample(level bool, at time.Duration) (time.Duration, bool) {
	if !d.seeded {
		// First reading only establishes the previous level.
		d.prev = level
		d.seeded = true
		return 0, false
	}

	prev := d.prev
	d.prev = level

	switch {
	case !prev && level:
		d.riseAt = at
		d.inPulse = true
	case prev && !level:
		if !d.inPulse {
			// Came up mid-pulse; the start was never seen.
			return 0, false
		}
		d.inPulse = false
		return at - d.riseAt, true
	}
	return 0, false
}

// Edge feeds an already detected edge (e.g. a kernel edge event).
// Consecutive edges of the same direction restart or drop the pulse.
func (d *PulseDecoder) Edge(rising bool, at time.Duration) (time.Duration, bool) {
	d.seeded = true
	d.prev = rising
	if rising {
		d.riseAt = at
		d.inPulse = true
		return 0, false
	}
	if !d.inPulse {
		return 0, false
	}
	d.inPulse = false
	return at - d.riseAt, true
}
