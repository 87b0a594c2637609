package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
)

func us(n int) time.Duration { return time.Duration(n) * time.Microsecond }

type recordingObserver struct {
	mu     sync.Mutex
	events []logic.Event
}

func (r *recordingObserver) Observe(e logic.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// measure drives a full low-high-low pulse of the given width.
func measure(s *Switch, at, width time.Duration) {
	s.Sample(false, at)
	s.Sample(true, at+us(50))
	s.Sample(false, at+us(50)+width)
}

func TestInitialStateSafe(t *testing.T) {
	s := New(Config{})
	if s.State() != logic.ArmSafe {
		t.Errorf("initial state: got %s, want SAFE", s.State())
	}
}

func TestPulseScenarios(t *testing.T) {
	tests := []struct {
		name  string
		prior time.Duration // 0 = leave initial SAFE
		width time.Duration
		want  logic.ArmState
	}{
		{"1600us arms", 0, us(1600), logic.ArmArmed},
		{"1400us safes", us(1800), us(1400), logic.ArmSafe},
		{"2500us ignored from ARMED", us(1800), us(2500), logic.ArmArmed},
		{"2500us ignored from SAFE", 0, us(2500), logic.ArmSafe},
		{"800us ignored from ARMED", us(1800), us(800), logic.ArmArmed},
		{"threshold is SAFE", us(1800), us(1500), logic.ArmSafe},
		{"lower bound valid", us(1800), us(900), logic.ArmSafe},
		{"upper bound valid", 0, us(2100), logic.ArmArmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{})
			at := time.Duration(0)
			if tt.prior > 0 {
				measure(s, at, tt.prior)
				at += 10 * time.Millisecond
			}
			measure(s, at, tt.width)
			if got := s.State(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRepeatedPulsesIdempotent(t *testing.T) {
	obs := &recordingObserver{}
	s := New(Config{Observer: obs})

	for i := 0; i < 5; i++ {
		measure(s, time.Duration(i)*20*time.Millisecond, us(1700))
		if s.State() != logic.ArmArmed {
			t.Fatalf("pulse %d: expected ARMED", i)
		}
	}
	if obs.count() != 1 {
		t.Errorf("expected one transition, got %d", obs.count())
	}
	measured, discarded := s.Stats()
	if measured != 5 || discarded != 0 {
		t.Errorf("stats: got (%d, %d), want (5, 0)", measured, discarded)
	}
}

func TestDiscardCounted(t *testing.T) {
	s := New(Config{})
	measure(s, 0, us(3000))
	measure(s, 20*time.Millisecond, us(100))
	if _, discarded := s.Stats(); discarded != 2 {
		t.Errorf("discarded: got %d, want 2", discarded)
	}
}

func TestStaleAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{StaleAfter: 100 * time.Millisecond})
	s.now = func() time.Time { return now }

	measure(s, 0, us(1800))
	if s.State() != logic.ArmArmed {
		t.Fatal("expected ARMED right after pulse")
	}

	now = now.Add(150 * time.Millisecond)
	if s.State() != logic.ArmSafe {
		t.Error("expected SAFE once signal is stale")
	}

	// A fresh pulse re-arms.
	measure(s, 200*time.Millisecond, us(1800))
	if s.State() != logic.ArmArmed {
		t.Error("expected ARMED after fresh pulse")
	}
}

func TestNoStaleByDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{})
	s.now = func() time.Time { return now }

	measure(s, 0, us(1800))
	now = now.Add(24 * time.Hour)
	if s.State() != logic.ArmArmed {
		t.Error("last valid state must persist without a stale timeout")
	}
}

func TestRunPolling(t *testing.T) {
	// With real sleeps the measured width is not exact, so script a
	// pulse far from the threshold: 1 low, many highs, then low.
	levels := []bool{false, false, true}
	in := gpio.NewFakeInput(levels)
	s := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPolling(ctx, in, 10*time.Microsecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for in.ReadCount() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPolling did not stop on cancel")
	}

	// Stuck high after the rise: no falling edge, state stays SAFE.
	if s.State() != logic.ArmSafe {
		t.Errorf("got %s, want SAFE", s.State())
	}
}

func TestRunPollingSurvivesReadErrors(t *testing.T) {
	in := gpio.NewFakeInput([]bool{false})
	in.SetError(errors.New("line gone"))
	s := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPolling(ctx, in, 10*time.Microsecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for in.ReadCount() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if in.ReadCount() < 5 {
		t.Errorf("expected loop to keep reading after errors, got %d reads", in.ReadCount())
	}
}

func TestRunEdges(t *testing.T) {
	src := gpio.NewFakeEdges(8)
	s := New(Config{})

	src.C <- gpio.Edge{Rising: true, At: us(1000)}
	src.C <- gpio.Edge{Rising: false, At: us(2600)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunEdges(ctx, src)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != logic.ArmArmed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != logic.ArmArmed {
		t.Error("expected ARMED from 1.6ms edge pair")
	}

	src.C <- gpio.Edge{Rising: true, At: us(20000)}
	src.C <- gpio.Edge{Rising: false, At: us(21400)}
	deadline = time.Now().Add(2 * time.Second)
	for s.State() != logic.ArmSafe && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != logic.ArmSafe {
		t.Error("expected SAFE from 1.4ms edge pair")
	}

	cancel()
	<-done
}

func TestConcurrentReadWrite(t *testing.T) {
	s := New(Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			w := us(1200)
			if i%2 == 0 {
				w = us(1800)
			}
			measure(s, time.Duration(i)*20*time.Millisecond, w)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			st := s.State()
			if st != logic.ArmArmed && st != logic.ArmSafe {
				t.Errorf("torn state %q", st)
				return
			}
		}
	}()

	wg.Wait()
}
