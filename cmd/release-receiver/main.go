// Command release-receiver decodes the PWM safety switch and fires the
// payload actuators on radio release commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/payload-release/internal/config"
	"github.com/sweeney/payload-release/internal/controller"
	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logging"
	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/mqtt"
	"github.com/sweeney/payload-release/internal/radio"
	"github.com/sweeney/payload-release/internal/reset"
	"github.com/sweeney/payload-release/internal/safety"
	"github.com/sweeney/payload-release/internal/servo"
	"github.com/sweeney/payload-release/internal/status"
	"github.com/sweeney/payload-release/internal/web"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	printState := flag.Bool("print-state", false, "Print the decoded arm state and exit")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	logFile := flag.String("log-file", "", "Also write logs to this rotated file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *httpAddr, *broker, *logFile)

	logs := logging.Setup(cfg.LogFile)
	defer logs.Close()

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags lets command line values win over the config file.
func applyFlags(cfg *config.Config, httpAddr, broker, logFile string) {
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP = ""
	default:
		cfg.HTTP = httpAddr
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
}

func run(cfg *config.Config, printState bool) error {
	if printState {
		return printArmState(cfg, 200*time.Millisecond)
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	rx, err := newReceiver(cfg, hw, time.Now())
	if err != nil {
		return err
	}

	// Initialize MQTT (optional diagnostic sink)
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			OnConnectionChange: rx.tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		rx.attach(pub, pub)
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, rx.tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: safety=%s radio=%s servo=%s reset=%v/%s",
		cfg.Safety.Mode, cfg.Radio.Driver, cfg.Servo.Driver, cfg.Release.ResetDelay, cfg.Release.ResetPolicy)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(rx, time.Now, sigCh)
}

// hardware holds the opened devices. Exactly one of safety and edges is
// set; led is nil when the indicator is disabled.
type hardware struct {
	safety gpio.Input
	edges  gpio.EdgeSource
	led    gpio.Output
	radio  radio.Transport
	servo  servo.Driver
}

func openSafety(cfg *config.Config, h *hardware) error {
	if cfg.Safety.Mode == config.SafetyEdges {
		e, err := gpio.NewRealEdges(cfg.Safety.Pin, gpio.PullDown, 64)
		if err != nil {
			return fmt.Errorf("init safety edges: %w", err)
		}
		h.edges = e
		return nil
	}
	in, err := gpio.NewRealInput(cfg.Safety.Pin, gpio.PullDown)
	if err != nil {
		return fmt.Errorf("init safety input: %w", err)
	}
	h.safety = in
	return nil
}

func openServo(cfg *config.Config) (servo.Driver, error) {
	if cfg.Servo.Driver == config.ServoRpio {
		d, err := servo.NewRpio(cfg.Servo.Pins, cfg.PulseRange())
		if err != nil {
			return nil, fmt.Errorf("init rpio servos: %w", err)
		}
		return d, nil
	}
	d, err := servo.NewPeriph(cfg.ServoPinNames(), cfg.PulseRange())
	if err != nil {
		return nil, fmt.Errorf("init periph servos: %w", err)
	}
	return d, nil
}

// openHardware opens every device, closing what was opened on failure.
func openHardware(cfg *config.Config) (*hardware, error) {
	h := &hardware{}
	if err := openSafety(cfg, h); err != nil {
		return nil, err
	}

	if cfg.LED.Pin >= 0 {
		led, err := gpio.NewRealOutput(cfg.LED.Pin)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("init led: %w", err)
		}
		h.led = led
	}

	r, err := cfg.OpenRadio()
	if err != nil {
		h.Close()
		return nil, err
	}
	h.radio = r
	if err := radio.Setup(r, radio.AirAddress, radio.GroundAddress); err != nil {
		h.Close()
		return nil, fmt.Errorf("setup radio: %w", err)
	}

	d, err := openServo(cfg)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.servo = d
	return h, nil
}

// Close releases every opened device.
func (h *hardware) Close() {
	closers := []interface{ Close() error }{}
	if h.safety != nil {
		closers = append(closers, h.safety)
	}
	if h.edges != nil {
		closers = append(closers, h.edges)
	}
	if h.led != nil {
		closers = append(closers, h.led)
	}
	if h.radio != nil {
		closers = append(closers, h.radio)
	}
	if h.servo != nil {
		closers = append(closers, h.servo)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

// printArmState decodes the safety input for window and prints the result.
func printArmState(cfg *config.Config, window time.Duration) error {
	h := &hardware{}
	if err := openSafety(cfg, h); err != nil {
		return err
	}
	defer h.Close()

	sw := safety.New(safety.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	decode(ctx, sw, h, cfg.Safety.Poll)

	measured, discarded := sw.Stats()
	fmt.Printf("SAFETY: %s (pulses measured=%d discarded=%d)\n", sw.State(), measured, discarded)
	return nil
}

func decode(ctx context.Context, sw *safety.Switch, h *hardware, poll time.Duration) {
	if h.edges != nil {
		sw.RunEdges(ctx, h.edges)
		return
	}
	sw.RunPolling(ctx, h.safety, poll)
}

// receiver wires the decoder, controller, reset scheduler and status
// tracker around one set of hardware.
type receiver struct {
	cfg     *config.Config
	hw      *hardware
	sw      *safety.Switch
	bank    *servo.Bank
	resets  *reset.Scheduler
	ctrl    *controller.Controller
	tracker *status.Tracker

	// Optional MQTT sink; set before runLoop starts.
	pub        mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	fwd        *mqtt.Forwarder
}

func newReceiver(cfg *config.Config, hw *hardware, start time.Time) (*receiver, error) {
	policy, err := reset.ParsePolicy(cfg.Release.ResetPolicy)
	if err != nil {
		return nil, err
	}

	rx := &receiver{cfg: cfg, hw: hw}
	rx.tracker = status.NewTracker(start, status.Config{
		SafetyMode:   cfg.Safety.Mode,
		RadioDriver:  cfg.Radio.Driver,
		ServoDriver:  cfg.Servo.Driver,
		PollMs:       cfg.Release.Poll.Milliseconds(),
		ResetDelayMs: cfg.Release.ResetDelay.Milliseconds(),
		ResetPolicy:  string(policy),
		StaleAfterMs: cfg.Safety.StaleAfter.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     cfg.HTTP,
	})

	rx.sw = safety.New(safety.Config{StaleAfter: cfg.Safety.StaleAfter, Observer: rx})
	rx.bank = servo.NewBank(hw.servo, logic.NumActuators)
	rx.resets = reset.New(rx.bank, reset.Config{
		Delay:    cfg.Release.ResetDelay,
		Policy:   policy,
		Observer: rx,
	})
	rx.ctrl = controller.New(controller.Deps{
		Radio:     hw.radio,
		Arm:       rx.sw,
		Actuators: rx.bank,
		Resets:    rx.resets,
		LED:       hw.led,
		Observer:  rx,
	}, cfg.Release.Poll)

	rx.tracker.SetSources(status.Sources{
		Arm:     rx.sw.State,
		Angles:  rx.bank.Angles,
		Pending: rx.resets.Pending,
		Pulses:  rx.sw.Stats,
	})
	return rx, nil
}

// attach adds the MQTT sink. Must be called before runLoop.
func (rx *receiver) attach(pub mqtt.Publisher, st mqtt.ConnectionStatus) {
	rx.pub = pub
	rx.mqttStatus = st
	rx.fwd = mqtt.NewForwarder(pub, mqtt.DefaultQueue)
}

// Observe fans an event out to the tracker and the MQTT forwarder.
func (rx *receiver) Observe(e logic.Event) {
	rx.tracker.Observe(e)
	if rx.fwd != nil {
		rx.fwd.Observe(e)
	}
}

func (rx *receiver) publishSystem(event, reason string, at time.Time) {
	if rx.pub == nil {
		return
	}
	if rx.mqttStatus != nil {
		rx.tracker.SetMQTTConnected(rx.mqttStatus.IsConnected())
	}
	snap := rx.tracker.Snapshot()
	err := rx.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// idle cancels pending resets and returns every actuator to rest.
func (rx *receiver) idle() {
	if n := len(rx.resets.Flush()); n > 0 {
		log.Printf("flushed %d pending resets", n)
	}
	if err := rx.bank.SetAll(logic.IdleAngle); err != nil {
		log.Printf("idle actuators: %v", err)
	}
	if rx.hw.led != nil {
		if err := rx.hw.led.Set(false); err != nil {
			log.Printf("led off: %v", err)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop starts the receiver goroutines and blocks until a signal
// arrives, then stops them and leaves the actuators idle.
func runLoop(rx *receiver, now func() time.Time, sig <-chan os.Signal) error {
	if err := rx.bank.SetAll(logic.IdleAngle); err != nil {
		log.Printf("idle actuators: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	pubCtx, stopPub := context.WithCancel(context.Background())
	var wg, pubWG sync.WaitGroup

	if rx.fwd != nil {
		pubWG.Add(1)
		go func() {
			defer pubWG.Done()
			rx.fwd.Run(pubCtx)
		}()
	}

	rx.publishSystem("STARTUP", "", now())

	wg.Add(3)
	go func() {
		defer wg.Done()
		decode(ctx, rx.sw, rx.hw, rx.cfg.Safety.Poll)
	}()
	go func() {
		defer wg.Done()
		rx.resets.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := rx.ctrl.Run(ctx); err != nil {
			log.Printf("controller: %v", err)
		}
	}()

	s := <-sig
	log.Printf("received %v, shutting down", s)
	stop()
	wg.Wait()
	rx.idle()

	// Drain the forwarder so the final resets reach the broker before
	// the SHUTDOWN event.
	stopPub()
	pubWG.Wait()

	rx.publishSystem("SHUTDOWN", signalName(s), now())
	return nil
}
