package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/payload-release/internal/radio"
)

func TestMessage(t *testing.T) {
	p := message(7)
	if got := string(p.Trimmed()); got != "Message 7" {
		t.Errorf("message: got %q, want %q", got, "Message 7")
	}
	if len(p) != radio.PayloadSize {
		t.Errorf("packet size: got %d", len(p))
	}
}

// runTicks feeds n ticks to loop, then cancels it. The tick channel is
// unbuffered so every tick has been taken before cancel.
func runTicks(n int, loop func(ctx context.Context, tick <-chan time.Time) int) int {
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- loop(ctx, tick) }()
	for i := 0; i < n; i++ {
		tick <- time.Now()
	}
	cancel()
	return <-done
}

func TestTransmitNumbersMessages(t *testing.T) {
	f := radio.NewFake()
	var out bytes.Buffer

	n := runTicks(3, func(ctx context.Context, tick <-chan time.Time) int {
		return transmit(ctx, f, tick, &out)
	})
	if n != 3 {
		t.Fatalf("sent: got %d, want 3", n)
	}
	for i, want := range []string{"Message 1", "Message 2", "Message 3"} {
		if got := string(f.Sent[i].Trimmed()); got != want {
			t.Errorf("packet %d: got %q, want %q", i, got, want)
		}
	}
	if !strings.Contains(out.String(), "sent: Message 3") {
		t.Errorf("output: got %q", out.String())
	}
}

func TestTransmitFailureContinues(t *testing.T) {
	f := radio.NewFake()
	f.SendError = radio.ErrSendFailed
	var out bytes.Buffer

	n := runTicks(2, func(ctx context.Context, tick <-chan time.Time) int {
		return transmit(ctx, f, tick, &out)
	})
	if n != 0 {
		t.Errorf("sent: got %d, want 0", n)
	}
	want := "send failed: Message 1: " + radio.ErrSendFailed.Error() + "\n" +
		"send failed: Message 2: " + radio.ErrSendFailed.Error() + "\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestReceivePrintsTrimmedPayloads(t *testing.T) {
	f := radio.NewFake()
	f.Push(message(0), message(1))
	var out bytes.Buffer

	n := runTicks(1, func(ctx context.Context, tick <-chan time.Time) int {
		return receive(ctx, f, tick, &out)
	})
	if n != 2 {
		t.Fatalf("received: got %d, want 2", n)
	}
	want := "received: Message 0\nreceived: Message 1\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestReceiveError(t *testing.T) {
	f := radio.NewFake()
	f.Push(message(0))
	f.ReceiveError = errors.New("spi: bus error")
	var out bytes.Buffer

	n := runTicks(1, func(ctx context.Context, tick <-chan time.Time) int {
		return receive(ctx, f, tick, &out)
	})
	if n != 0 {
		t.Errorf("received: got %d, want 0", n)
	}
	if !strings.Contains(out.String(), "receive error: spi: bus error") {
		t.Errorf("output: got %q", out.String())
	}
}

func TestRunRejectsMode(t *testing.T) {
	if err := run("", "both"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
