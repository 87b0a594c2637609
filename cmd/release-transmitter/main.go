// Command release-transmitter runs the ground unit: a button press sends
// one release command to the receiver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sweeney/payload-release/internal/config"
	"github.com/sweeney/payload-release/internal/ground"
	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logging"
	"github.com/sweeney/payload-release/internal/radio"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	logFile := flag.String("log-file", "", "Also write logs to this rotated file")
	once := flag.Bool("once", false, "Send a single release command and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	logs := logging.Setup(cfg.LogFile)
	defer logs.Close()

	if err := run(cfg, *once); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func groundConfig(cfg *config.Config) ground.Config {
	return ground.Config{
		Poll:     cfg.Ground.Poll,
		Settle:   cfg.Ground.Settle,
		Debounce: cfg.Ground.Debounce,
	}
}

func run(cfg *config.Config, once bool) error {
	button, err := gpio.NewRealInput(cfg.Ground.ButtonPin, gpio.PullUp)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer button.Close()

	r, err := cfg.OpenRadio()
	if err != nil {
		return err
	}
	defer r.Close()
	if err := radio.Setup(r, radio.GroundAddress, radio.AirAddress); err != nil {
		return fmt.Errorf("setup radio: %w", err)
	}

	tx := ground.New(r, button, groundConfig(cfg))
	if once {
		return tx.Send()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tx.Run(ctx)
	st := tx.Stats()
	log.Printf("stopped: sent=%d failed=%d", st.Sent, st.Failed)
	return err
}
