package logic

// Decide applies the arm interlock to a received opcode.
// An unknown opcode is reported as such even when the switch is SAFE,
// so diagnostics can tell the two causes apart.
func Decide(opcode byte, arm ArmState) Action {
	if opcode != OpRelease {
		return ActionIgnoreOpcode
	}
	if arm != ArmArmed {
		return ActionIgnoreSafe
	}
	return ActionRelease
}

// Sequencer is the round-robin release cursor. Actuators fire strictly
// in order 0, 1, ..., n-1, 0, ... with no way to address one directly.
// Not safe for concurrent use; it belongs to the controller goroutine.
type Sequencer struct {
	size   int
	cursor int
}

// NewSequencer creates a cursor over size actuators starting at 0.
func NewSequencer(size int) *Sequencer {
	if size <= 0 {
		size = NumActuators
	}
	return &Sequencer{size: size}
}

// Cursor returns the index that fires next.
func (s *Sequencer) Cursor() int {
	return s.cursor
}

// Next returns the index to fire and advances the cursor.
func (s *Sequencer) Next() int {
	idx := s.cursor
	s.cursor = (s.cursor + 1) % s.size
	return idx
}
