// Package config loads the daemon configuration: built-in defaults, then
// an optional YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/payload-release/internal/controller"
	"github.com/sweeney/payload-release/internal/ground"
	"github.com/sweeney/payload-release/internal/gpio"
	"github.com/sweeney/payload-release/internal/logic"
	"github.com/sweeney/payload-release/internal/radio"
	"github.com/sweeney/payload-release/internal/reset"
	"github.com/sweeney/payload-release/internal/safety"
	"github.com/sweeney/payload-release/internal/servo"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELEASE_RECEIVER_"

// Safety input modes.
const (
	SafetyPolling = "polling"
	SafetyEdges   = "edges"
)

// Radio drivers.
const (
	RadioNRF24  = radio.DriverNRF24
	RadioSerial = radio.DriverSerial
)

// Servo drivers.
const (
	ServoPeriph = "periph"
	ServoRpio   = "rpio"
)

// Config represents the complete configuration for both units.
type Config struct {
	Safety  SafetyConfig  `yaml:"safety"`
	Radio   RadioConfig   `yaml:"radio"`
	Servo   ServoConfig   `yaml:"servo"`
	LED     LEDConfig     `yaml:"led"`
	Release ReleaseConfig `yaml:"release"`
	Ground  GroundConfig  `yaml:"ground"`
	HTTP    string        `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	LogFile string        `yaml:"log_file"`
}

// SafetyConfig holds the PWM safety input settings.
type SafetyConfig struct {
	Pin        int           `yaml:"pin"`
	Mode       string        `yaml:"mode"`
	Poll       time.Duration `yaml:"poll"`
	StaleAfter time.Duration `yaml:"stale_after"` // 0 = keep last state forever
}

// RadioConfig holds the packet radio settings.
type RadioConfig struct {
	Driver  string `yaml:"driver"`
	Channel int    `yaml:"channel"`
	SPIPort string `yaml:"spi_port"`
	CEPin   string `yaml:"ce_pin"`
	SpeedHz int64  `yaml:"speed_hz"`
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
}

// ServoConfig holds the actuator settings.
type ServoConfig struct {
	Driver   string        `yaml:"driver"`
	Pins     []int         `yaml:"pins"`
	MinPulse time.Duration `yaml:"min_pulse"`
	MaxPulse time.Duration `yaml:"max_pulse"`
}

// LEDConfig holds the acknowledgement indicator settings.
type LEDConfig struct {
	Pin int `yaml:"pin"` // negative disables the indicator
}

// ReleaseConfig holds controller and reset timing.
type ReleaseConfig struct {
	Poll        time.Duration `yaml:"poll"`
	ResetDelay  time.Duration `yaml:"reset_delay"`
	ResetPolicy string        `yaml:"reset_policy"`
}

// GroundConfig holds transmitter settings.
type GroundConfig struct {
	ButtonPin int           `yaml:"button_pin"`
	Poll      time.Duration `yaml:"poll"`
	Debounce  time.Duration `yaml:"debounce"`
	Settle    time.Duration `yaml:"settle"`
}

// MQTTConfig holds the optional diagnostic broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty = disabled
	ClientID string `yaml:"client_id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Safety: SafetyConfig{
			Pin:  gpio.DefaultPinSafety,
			Mode: SafetyPolling,
			Poll: safety.DefaultPollInterval,
		},
		Radio: RadioConfig{
			Driver:  RadioNRF24,
			Channel: radio.Channel,
			SPIPort: "/dev/spidev0.0",
			CEPin:   "GPIO17",
			SpeedHz: 4000000,
			Device:  "/dev/ttyUSB0",
			Baud:    115200,
		},
		Servo: ServoConfig{
			Driver:   ServoPeriph,
			Pins:     append([]int(nil), servo.DefaultPins...),
			MinPulse: servo.DefaultMinPulse,
			MaxPulse: servo.DefaultMaxPulse,
		},
		LED: LEDConfig{Pin: gpio.DefaultPinLED},
		Release: ReleaseConfig{
			Poll:        controller.DefaultPoll,
			ResetDelay:  logic.DefaultResetDelay,
			ResetPolicy: string(reset.PolicyReplace),
		},
		Ground: GroundConfig{
			ButtonPin: gpio.DefaultPinButton,
			Poll:      ground.DefaultPoll,
			Settle:    ground.DefaultSettle,
		},
		HTTP: ":8080",
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg, getenv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadFromFile decodes a YAML file over cfg. Unknown keys are rejected.
func loadFromFile(cfg *Config, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnvOverrides applies RELEASE_RECEIVER_* variables.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("SAFETY_MODE", &cfg.Safety.Mode)
	str("RADIO_DRIVER", &cfg.Radio.Driver)
	str("SERIAL_DEVICE", &cfg.Radio.Device)
	str("SERVO_DRIVER", &cfg.Servo.Driver)
	str("RESET_POLICY", &cfg.Release.ResetPolicy)
	str("HTTP", &cfg.HTTP)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("LOG_FILE", &cfg.LogFile)

	if err := num("RADIO_CHANNEL", &cfg.Radio.Channel); err != nil {
		return err
	}
	if err := dur("RESET_DELAY", &cfg.Release.ResetDelay); err != nil {
		return err
	}
	if err := dur("STALE_AFTER", &cfg.Safety.StaleAfter); err != nil {
		return err
	}
	if v := getenv(EnvPrefix + "SERVO_PINS"); v != "" {
		pins, err := parsePins(v)
		if err != nil {
			return fmt.Errorf("%sSERVO_PINS: %w", EnvPrefix, err)
		}
		cfg.Servo.Pins = pins
	}
	return nil
}

// parsePins reads a comma separated pin list such as "5,6,26".
func parsePins(s string) ([]int, error) {
	var pins []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		pins = append(pins, n)
	}
	return pins, nil
}

// validate checks cross-field constraints.
func validate(cfg *Config) error {
	switch cfg.Safety.Mode {
	case SafetyPolling, SafetyEdges:
	default:
		return fmt.Errorf("safety.mode %q must be %q or %q", cfg.Safety.Mode, SafetyPolling, SafetyEdges)
	}
	if cfg.Safety.Poll <= 0 {
		return fmt.Errorf("safety.poll must be positive")
	}
	if cfg.Safety.StaleAfter < 0 {
		return fmt.Errorf("safety.stale_after must not be negative")
	}

	switch cfg.Radio.Driver {
	case RadioNRF24, RadioSerial:
	default:
		return fmt.Errorf("radio.driver %q must be %q or %q", cfg.Radio.Driver, RadioNRF24, RadioSerial)
	}
	if cfg.Radio.Channel < 0 || cfg.Radio.Channel > 125 {
		return fmt.Errorf("radio.channel %d outside [0, 125]", cfg.Radio.Channel)
	}

	switch cfg.Servo.Driver {
	case ServoPeriph, ServoRpio:
	default:
		return fmt.Errorf("servo.driver %q must be %q or %q", cfg.Servo.Driver, ServoPeriph, ServoRpio)
	}
	if len(cfg.Servo.Pins) != logic.NumActuators {
		return fmt.Errorf("servo.pins: need exactly %d pins, got %d", logic.NumActuators, len(cfg.Servo.Pins))
	}
	if cfg.Servo.MinPulse <= 0 || cfg.Servo.MaxPulse <= cfg.Servo.MinPulse {
		return fmt.Errorf("servo pulse range %v..%v is invalid", cfg.Servo.MinPulse, cfg.Servo.MaxPulse)
	}
	if cfg.Servo.Driver == ServoRpio {
		if err := servo.CheckHardwarePWM(cfg.Servo.Pins); err != nil {
			return fmt.Errorf("servo.pins for rpio: %w", err)
		}
	}
	if err := checkPins(cfg); err != nil {
		return err
	}

	if cfg.Release.Poll <= 0 {
		return fmt.Errorf("release.poll must be positive")
	}
	if cfg.Release.ResetDelay <= 0 {
		return fmt.Errorf("release.reset_delay must be positive")
	}
	if _, err := reset.ParsePolicy(cfg.Release.ResetPolicy); err != nil {
		return fmt.Errorf("release.reset_policy: %w", err)
	}

	if cfg.Ground.Poll <= 0 || cfg.Ground.Settle < 0 || cfg.Ground.Debounce < 0 {
		return fmt.Errorf("ground timing is invalid")
	}
	return nil
}

// spi0Lines are the BCM pins of SPI0: CE1, CE0, MISO, MOSI and SCLK.
var spi0Lines = []int{7, 8, 9, 10, 11}

// checkPins rejects a receiver pin claimed by more than one function.
func checkPins(cfg *Config) error {
	used := map[int]string{cfg.Safety.Pin: "safety.pin"}
	claim := func(pin int, name string) error {
		if owner, ok := used[pin]; ok {
			return fmt.Errorf("%s: pin %d is already used by %s", name, pin, owner)
		}
		used[pin] = name
		return nil
	}

	if cfg.LED.Pin >= 0 {
		if err := claim(cfg.LED.Pin, "led.pin"); err != nil {
			return err
		}
	}
	if cfg.Radio.Driver == RadioNRF24 {
		if n, ok := bcmNumber(cfg.Radio.CEPin); ok {
			if err := claim(n, "radio.ce_pin"); err != nil {
				return err
			}
		}
		if strings.HasPrefix(cfg.Radio.SPIPort, "/dev/spidev0.") {
			for _, n := range spi0Lines {
				if err := claim(n, "radio.spi_port "+cfg.Radio.SPIPort); err != nil {
					return err
				}
			}
		}
	}
	for i, p := range cfg.Servo.Pins {
		if err := claim(p, fmt.Sprintf("servo.pins[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// bcmNumber parses a periph pin name such as "GPIO17".
func bcmNumber(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "GPIO"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ServoPinNames returns the pins in periph naming ("GPIO5").
func (c *Config) ServoPinNames() []string {
	names := make([]string, len(c.Servo.Pins))
	for i, p := range c.Servo.Pins {
		names[i] = fmt.Sprintf("GPIO%d", p)
	}
	return names
}

// NRF24 returns the SPI radio settings.
func (c *Config) NRF24() radio.NRF24Config {
	return radio.NRF24Config{
		SPIPort: c.Radio.SPIPort,
		CEPin:   c.Radio.CEPin,
		Channel: c.Radio.Channel,
		SpeedHz: c.Radio.SpeedHz,
	}
}

// Serial returns the serial bridge settings.
func (c *Config) Serial() radio.SerialConfig {
	return radio.SerialConfig{Device: c.Radio.Device, Baud: c.Radio.Baud}
}

// OpenRadio opens the configured radio driver.
func (c *Config) OpenRadio() (radio.Transport, error) {
	return radio.Open(c.Radio.Driver, c.NRF24(), c.Serial())
}

// PulseRange returns the configured servo pulse span.
func (c *Config) PulseRange() servo.PulseRange {
	return servo.PulseRange{Min: c.Servo.MinPulse, Max: c.Servo.MaxPulse}
}
