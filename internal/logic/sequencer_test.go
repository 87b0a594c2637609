package logic

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		arm    ArmState
		want   Action
	}{
		{"release armed", OpRelease, ArmArmed, ActionRelease},
		{"release safe", OpRelease, ArmSafe, ActionIgnoreSafe},
		{"release unknown state", OpRelease, "", ActionIgnoreSafe},
		{"unknown opcode armed", 0x02, ArmArmed, ActionIgnoreOpcode},
		{"unknown opcode safe", 0x00, ArmSafe, ActionIgnoreOpcode},
		{"unknown opcode high", 0xFF, ArmArmed, ActionIgnoreOpcode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.opcode, tt.arm); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSequencerRoundRobin(t *testing.T) {
	s := NewSequencer(NumActuators)
	for n := 0; n < 10; n++ {
		if got := s.Next(); got != n%3 {
			t.Fatalf("release %d: got actuator %d, want %d", n, got, n%3)
		}
		if s.Cursor() != (n+1)%3 {
			t.Fatalf("release %d: cursor %d, want %d", n, s.Cursor(), (n+1)%3)
		}
	}
}

func TestSequencerDefaultSize(t *testing.T) {
	s := NewSequencer(0)
	got := []int{s.Next(), s.Next(), s.Next(), s.Next()}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("release %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEventCountsAdd(t *testing.T) {
	var c EventCounts
	for _, e := range []EventType{EventRelease, EventRelease, EventIgnoredSafe, EventIgnoredOpcode, EventReset, EventArmChange, "BOGUS"} {
		c.Add(e)
	}
	want := EventCounts{Releases: 2, IgnoredSafe: 1, IgnoredOpcode: 1, Resets: 1, ArmChanges: 1}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}
}

func TestActionString(t *testing.T) {
	if ActionRelease.String() != "RELEASE" {
		t.Errorf("got %q", ActionRelease.String())
	}
	if Action(42).String() != "Action(42)" {
		t.Errorf("got %q", Action(42).String())
	}
}
