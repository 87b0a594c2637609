package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Safety.Pin != 13 {
		t.Errorf("Safety.Pin: got %d, want 13", cfg.Safety.Pin)
	}
	if cfg.Safety.Poll != 50*time.Microsecond {
		t.Errorf("Safety.Poll: got %v, want 50us", cfg.Safety.Poll)
	}
	if cfg.Safety.StaleAfter != 0 {
		t.Errorf("Safety.StaleAfter: got %v, want disabled", cfg.Safety.StaleAfter)
	}
	if cfg.Radio.Channel != 76 {
		t.Errorf("Radio.Channel: got %d, want 76", cfg.Radio.Channel)
	}
	if len(cfg.Servo.Pins) != 3 || cfg.Servo.Pins[0] != 5 || cfg.Servo.Pins[2] != 26 {
		t.Errorf("Servo.Pins: got %v", cfg.Servo.Pins)
	}
	if cfg.Release.Poll != 10*time.Millisecond {
		t.Errorf("Release.Poll: got %v, want 10ms", cfg.Release.Poll)
	}
	if cfg.Release.ResetDelay != 2*time.Second {
		t.Errorf("Release.ResetDelay: got %v, want 2s", cfg.Release.ResetDelay)
	}
	if cfg.Release.ResetPolicy != "replace" {
		t.Errorf("Release.ResetPolicy: got %q", cfg.Release.ResetPolicy)
	}
	if cfg.Ground.ButtonPin != 15 || cfg.Ground.Poll != 50*time.Millisecond {
		t.Errorf("Ground: got %+v", cfg.Ground)
	}
	if cfg.MQTT.Broker != "" {
		t.Error("MQTT should be disabled by default")
	}
	if err := validate(cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestDefaultPinsNotShared(t *testing.T) {
	a := Default()
	a.Servo.Pins[0] = 99
	if Default().Servo.Pins[0] == 99 {
		t.Error("Default must not share the pin slice")
	}
}

func TestPinChecksFollowRadio(t *testing.T) {
	cfg := Default()
	cfg.Servo.Pins = []int{10, 11, 17}
	if err := validate(cfg); err == nil {
		t.Fatal("nrf24 on spidev0 must reserve the SPI0 and CE pins")
	}

	cfg.Radio.Driver = RadioSerial
	if err := validate(cfg); err != nil {
		t.Errorf("serial radio leaves SPI0 free: %v", err)
	}

	cfg.Radio.Driver = RadioNRF24
	cfg.Radio.SPIPort = "/dev/spidev1.0"
	cfg.Radio.CEPin = "GPIO27"
	if err := validate(cfg); err != nil {
		t.Errorf("spidev1 leaves SPI0 free: %v", err)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := load("", env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP != ":8080" {
		t.Errorf("HTTP: got %q", cfg.HTTP)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
safety:
  mode: edges
  stale_after: 500ms
radio:
  driver: serial
  device: /dev/ttyAMA0
servo:
  pins: [12, 18, 19]
release:
  reset_delay: 3s
  reset_policy: coalesce
mqtt:
  broker: tcp://localhost:1883
log_file: /var/log/release.log
`)
	cfg, err := load(path, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Safety.Mode != SafetyEdges || cfg.Safety.StaleAfter != 500*time.Millisecond {
		t.Errorf("Safety: got %+v", cfg.Safety)
	}
	if cfg.Safety.Poll != 50*time.Microsecond {
		t.Error("unset keys must keep their defaults")
	}
	if cfg.Radio.Driver != RadioSerial || cfg.Radio.Device != "/dev/ttyAMA0" {
		t.Errorf("Radio: got %+v", cfg.Radio)
	}
	if cfg.Servo.Driver != ServoPeriph || cfg.Servo.Pins[2] != 19 {
		t.Errorf("Servo: got %+v", cfg.Servo)
	}
	if cfg.Release.ResetDelay != 3*time.Second || cfg.Release.ResetPolicy != "coalesce" {
		t.Errorf("Release: got %+v", cfg.Release)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.LogFile != "/var/log/release.log" {
		t.Errorf("LogFile: got %q", cfg.LogFile)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "")
	if _, err := load(path, env(nil)); err != nil {
		t.Errorf("empty file should load defaults: %v", err)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeFile(t, "safety:\n  pinn: 4\n")
	if _, err := load(path, env(nil)); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := load("non-existent-file.yaml", env(nil)); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := load("", env(map[string]string{
		"RELEASE_RECEIVER_RESET_POLICY":  "coalesce",
		"RELEASE_RECEIVER_RESET_DELAY":   "1500ms",
		"RELEASE_RECEIVER_STALE_AFTER":   "250ms",
		"RELEASE_RECEIVER_MQTT_BROKER":   "tcp://broker:1883",
		"RELEASE_RECEIVER_SERVO_PINS":    "5, 6, 19",
		"RELEASE_RECEIVER_RADIO_CHANNEL": "90",
		"RELEASE_RECEIVER_HTTP":          ":9000",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Release.ResetPolicy != "coalesce" || cfg.Release.ResetDelay != 1500*time.Millisecond {
		t.Errorf("Release: got %+v", cfg.Release)
	}
	if cfg.Safety.StaleAfter != 250*time.Millisecond {
		t.Errorf("StaleAfter: got %v", cfg.Safety.StaleAfter)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker: got %q", cfg.MQTT.Broker)
	}
	if len(cfg.Servo.Pins) != 3 || cfg.Servo.Pins[1] != 6 {
		t.Errorf("Servo.Pins: got %v", cfg.Servo.Pins)
	}
	if cfg.Radio.Channel != 90 {
		t.Errorf("Radio.Channel: got %d", cfg.Radio.Channel)
	}
	if cfg.HTTP != ":9000" {
		t.Errorf("HTTP: got %q", cfg.HTTP)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeFile(t, "release:\n  reset_policy: coalesce\n")
	cfg, err := load(path, env(map[string]string{"RELEASE_RECEIVER_RESET_POLICY": "replace"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Release.ResetPolicy != "replace" {
		t.Errorf("ResetPolicy: got %q, want replace", cfg.Release.ResetPolicy)
	}
}

func TestEnvBadValues(t *testing.T) {
	for _, key := range []string{"RESET_DELAY", "STALE_AFTER", "RADIO_CHANNEL", "SERVO_PINS"} {
		_, err := load("", env(map[string]string{EnvPrefix + key: "not-a-value"}))
		if err == nil {
			t.Errorf("%s: expected error", key)
			continue
		}
		if !strings.Contains(err.Error(), EnvPrefix+key) {
			t.Errorf("%s: error should name the variable: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"safety mode", func(c *Config) { c.Safety.Mode = "interrupt" }},
		{"safety poll", func(c *Config) { c.Safety.Poll = 0 }},
		{"stale negative", func(c *Config) { c.Safety.StaleAfter = -time.Second }},
		{"radio driver", func(c *Config) { c.Radio.Driver = "lora" }},
		{"radio channel", func(c *Config) { c.Radio.Channel = 126 }},
		{"servo driver", func(c *Config) { c.Servo.Driver = "pca9685" }},
		{"servo pins", func(c *Config) { c.Servo.Pins = []int{5, 6} }},
		{"servo on spi0", func(c *Config) { c.Servo.Pins = []int{10, 11, 12} }},
		{"servo on safety pin", func(c *Config) { c.Servo.Pins = []int{13, 5, 6} }},
		{"servo on led pin", func(c *Config) { c.Servo.Pins[2] = c.LED.Pin }},
		{"servo on ce pin", func(c *Config) { c.Servo.Pins[0] = 17 }},
		{"servo pins repeated", func(c *Config) { c.Servo.Pins = []int{5, 5, 6} }},
		{"led on safety pin", func(c *Config) { c.LED.Pin = c.Safety.Pin }},
		{"rpio without hardware pwm", func(c *Config) { c.Servo.Driver = ServoRpio }},
		{"rpio shared channel", func(c *Config) {
			c.Servo.Driver = ServoRpio
			c.Servo.Pins = []int{12, 13, 18}
		}},
		{"pulse range", func(c *Config) { c.Servo.MaxPulse = c.Servo.MinPulse }},
		{"release poll", func(c *Config) { c.Release.Poll = 0 }},
		{"reset delay", func(c *Config) { c.Release.ResetDelay = 0 }},
		{"reset policy", func(c *Config) { c.Release.ResetPolicy = "stack" }},
		{"ground poll", func(c *Config) { c.Ground.Poll = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestServoPinNames(t *testing.T) {
	names := Default().ServoPinNames()
	if len(names) != 3 || names[0] != "GPIO5" || names[2] != "GPIO26" {
		t.Errorf("ServoPinNames: got %v", names)
	}
}

func TestPulseRange(t *testing.T) {
	pr := Default().PulseRange()
	if pr.Min != 500*time.Microsecond || pr.Max != 2500*time.Microsecond {
		t.Errorf("PulseRange: got %+v", pr)
	}
}

func TestRadioSettings(t *testing.T) {
	cfg := Default()
	cfg.Radio.Channel = 90
	nrf := cfg.NRF24()
	if nrf.Channel != 90 || nrf.CEPin != "GPIO17" || nrf.SPIPort != "/dev/spidev0.0" {
		t.Errorf("NRF24: got %+v", nrf)
	}
	ser := cfg.Serial()
	if ser.Device != "/dev/ttyUSB0" || ser.Baud != 115200 {
		t.Errorf("Serial: got %+v", ser)
	}
}
