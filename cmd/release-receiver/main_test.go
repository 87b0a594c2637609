package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/payload-release/internal/config"
	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/mqtt"
	"github.com/sweeney/payload-release/internal/radio"
	"github.com/sweeney/payload-release/internal/servo"
)

type rig struct {
	edges *gpio.FakeEdges
	radio *radio.Fake
	servo *servo.Fake
	moves chan servo.Command
	led   *gpio.FakeOutput
	pub   *mqtt.FakePublisher
}

func newRig(t *testing.T, resetDelay time.Duration, withBroker bool) (*receiver, *rig) {
	t.Helper()
	r := &rig{
		edges: gpio.NewFakeEdges(8),
		radio: radio.NewFake(),
		moves: make(chan servo.Command, 64),
		led:   gpio.NewFakeOutput(),
		pub:   mqtt.NewFakePublisher(),
	}
	r.servo = servo.NewFake(r.moves)

	cfg := config.Default()
	cfg.Safety.Mode = config.SafetyEdges
	cfg.Release.Poll = time.Millisecond
	cfg.Release.ResetDelay = resetDelay
	cfg.HTTP = ""

	hw := &hardware{edges: r.edges, led: r.led, radio: r.radio, servo: r.servo}
	rx, err := newReceiver(cfg, hw, time.Now())
	if err != nil {
		t.Fatalf("newReceiver: %v", err)
	}
	if withBroker {
		r.pub.Connected = true
		rx.attach(r.pub, r.pub)
	}
	return rx, r
}

func startLoop(rx *receiver) (chan<- os.Signal, <-chan error) {
	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- runLoop(rx, time.Now, sig) }()
	return sig, done
}

func stopLoop(t *testing.T, sig chan<- os.Signal, done <-chan error, s os.Signal) {
	t.Helper()
	sig <- s
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitMove(t *testing.T, moves <-chan servo.Command, index, degrees int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-moves:
			if c.Index == index && c.Degrees == degrees {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for actuator %d to reach %d", index, degrees)
		}
	}
}

func arm(t *testing.T, rx *receiver, r *rig) {
	t.Helper()
	r.edges.C <- gpio.Edge{Rising: true, At: 0}
	r.edges.C <- gpio.Edge{Rising: false, At: 1600 * time.Microsecond}
	waitUntil(t, "ARMED", func() bool { return rx.sw.State() == logic.ArmArmed })
}

func eventTypes(events []logic.Event) []logic.EventType {
	out := make([]logic.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestRunLoopReleaseAndReset(t *testing.T) {
	rx, r := newRig(t, 30*time.Millisecond, true)
	sig, done := startLoop(rx)

	arm(t, rx, r)
	r.radio.Push(radio.NewPacket(logic.OpRelease))
	waitMove(t, r.moves, 0, logic.ReleaseAngle)
	waitMove(t, r.moves, 0, logic.IdleAngle)

	stopLoop(t, sig, done, syscall.SIGTERM)

	names := r.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v", names)
	}
	if reason := r.pub.SystemEvents[1].Reason; reason != "SIGTERM" {
		t.Errorf("shutdown reason: got %q, want SIGTERM", reason)
	}

	got := eventTypes(r.pub.Events)
	want := []logic.EventType{logic.EventArmChange, logic.EventRelease, logic.EventReset}
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if n := r.led.ToggleCount(); n != 1 {
		t.Errorf("led toggles: got %d, want 1", n)
	}
	if r.led.On {
		t.Error("led should be off after shutdown")
	}
	snap := rx.tracker.Snapshot()
	if snap.Counts.Releases != 1 || snap.Cursor != 1 {
		t.Errorf("tracker: releases=%d cursor=%d", snap.Counts.Releases, snap.Cursor)
	}
}

func TestRunLoopShutdownFlushesPendingResets(t *testing.T) {
	rx, r := newRig(t, time.Hour, true)
	sig, done := startLoop(rx)

	arm(t, rx, r)
	r.radio.Push(radio.NewPacket(logic.OpRelease))
	waitMove(t, r.moves, 0, logic.ReleaseAngle)

	stopLoop(t, sig, done, syscall.SIGINT)

	if p := rx.resets.Pending(); len(p) != 0 {
		t.Errorf("pending resets after shutdown: %+v", p)
	}
	for i, a := range rx.bank.Angles() {
		if a != logic.IdleAngle {
			t.Errorf("actuator %d: got %d, want idle", i, a)
		}
	}

	var resets int
	for _, e := range r.pub.Events {
		if e.Type == logic.EventReset {
			resets++
		}
	}
	if resets != 1 {
		t.Errorf("reset events: got %d, want 1", resets)
	}
	if reason := r.pub.SystemEvents[len(r.pub.SystemEvents)-1].Reason; reason != "SIGINT" {
		t.Errorf("shutdown reason: got %q, want SIGINT", reason)
	}
}

func TestRunLoopIgnoresReleaseWhenSafe(t *testing.T) {
	rx, r := newRig(t, 30*time.Millisecond, true)
	sig, done := startLoop(rx)

	r.radio.Push(radio.NewPacket(logic.OpRelease))
	waitUntil(t, "ignored release", func() bool {
		return rx.tracker.Snapshot().Counts.IgnoredSafe == 1
	})

	stopLoop(t, sig, done, syscall.SIGTERM)

	for _, c := range r.servo.History() {
		if c.Degrees == logic.ReleaseAngle {
			t.Fatalf("actuator %d fired while SAFE", c.Index)
		}
	}
	if n := r.led.ToggleCount(); n != 0 {
		t.Errorf("led toggles: got %d, want 0", n)
	}
}

func TestRunLoopDrivesIdleOnStartup(t *testing.T) {
	rx, r := newRig(t, time.Second, false)
	sig, done := startLoop(rx)

	for i := 0; i < logic.NumActuators; i++ {
		waitMove(t, r.moves, i, logic.IdleAngle)
	}
	stopLoop(t, sig, done, syscall.SIGTERM)

	if n := r.pub.EventCount(); n != 0 {
		t.Errorf("no broker attached, got %d published events", n)
	}
}

func TestNewReceiverBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Release.ResetPolicy = "stack"
	hw := &hardware{safety: gpio.NewFakeInput([]bool{false}), radio: radio.NewFake(), servo: servo.NewFake(nil)}
	if _, err := newReceiver(cfg, hw, time.Now()); err == nil {
		t.Error("expected error for unknown reset policy")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name                  string
		http, broker, logFile string
		wantHTTP, wantBroker  string
		wantLogFile           string
	}{
		{"none", "", "", "", ":8080", "", ""},
		{"http", ":9000", "", "", ":9000", "", ""},
		{"http off", "off", "", "", "", "", ""},
		{"broker", "", "tcp://pi:1883", "", ":8080", "tcp://pi:1883", ""},
		{"log file", "", "", "/var/log/rx.log", ":8080", "", "/var/log/rx.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			applyFlags(cfg, tt.http, tt.broker, tt.logFile)
			if cfg.HTTP != tt.wantHTTP {
				t.Errorf("HTTP: got %q, want %q", cfg.HTTP, tt.wantHTTP)
			}
			if cfg.MQTT.Broker != tt.wantBroker {
				t.Errorf("Broker: got %q, want %q", cfg.MQTT.Broker, tt.wantBroker)
			}
			if cfg.LogFile != tt.wantLogFile {
				t.Errorf("LogFile: got %q, want %q", cfg.LogFile, tt.wantLogFile)
			}
		})
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}
