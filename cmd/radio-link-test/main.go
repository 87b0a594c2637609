// Command radio-link-test checks the radio link between the two units.
// One side runs -mode tx and sends numbered messages; the other runs
// -mode rx and prints what arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/payload-release/internal/config"
	"github.com/sweeney/payload-release/internal/radio"
)

const (
	txInterval = time.Second
	rxInterval = 100 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	mode := flag.String("mode", "rx", "tx sends, rx receives")

	flag.Parse()

	if err := run(*configPath, *mode); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, mode string) error {
	if mode != "tx" && mode != "rx" {
		return fmt.Errorf("mode %q must be tx or rx", mode)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	r, err := cfg.OpenRadio()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "tx" {
		if err := radio.Setup(r, radio.GroundAddress, radio.AirAddress); err != nil {
			return fmt.Errorf("setup radio: %w", err)
		}
		if err := r.SetListening(false); err != nil {
			return fmt.Errorf("stop listening: %w", err)
		}
		ticker := time.NewTicker(txInterval)
		defer ticker.Stop()
		n := transmit(ctx, r, ticker.C, os.Stdout)
		log.Printf("sent %d messages", n)
		return nil
	}

	if err := radio.Setup(r, radio.AirAddress, radio.GroundAddress); err != nil {
		return fmt.Errorf("setup radio: %w", err)
	}
	ticker := time.NewTicker(rxInterval)
	defer ticker.Stop()
	n := receive(ctx, r, ticker.C, os.Stdout)
	log.Printf("received %d messages", n)
	return nil
}

func message(n int) radio.Packet {
	return radio.PacketFrom([]byte(fmt.Sprintf("Message %d", n)))
}

// transmit sends one numbered message per tick and returns how many
// were acknowledged.
func transmit(ctx context.Context, t radio.Transport, tick <-chan time.Time, out io.Writer) int {
	sent := 0
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return sent
		case <-tick:
		}
		p := message(n)
		if err := t.Send(p); err != nil {
			fmt.Fprintf(out, "send failed: %s: %v\n", p.Trimmed(), err)
			continue
		}
		sent++
		fmt.Fprintf(out, "sent: %s\n", p.Trimmed())
	}
}

// receive drains pending packets on every tick and prints their payloads.
func receive(ctx context.Context, t radio.Transport, tick <-chan time.Time, out io.Writer) int {
	got := 0
	for {
		select {
		case <-ctx.Done():
			return got
		case <-tick:
		}
		for t.HasPending() {
			p, err := t.Receive()
			if err != nil {
				fmt.Fprintf(out, "receive error: %v\n", err)
				break
			}
			got++
			fmt.Fprintf(out, "received: %s\n", p.Trimmed())
		}
	}
}
