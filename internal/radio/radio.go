// Package radio provides the fixed-size packet link between the ground
// and air units, with hardware abstraction for testing.
package radio

import (
	"errors"
	"fmt"
)

// Link parameters shared by both units.
const (
	Channel     = 76
	PayloadSize = 32
)

// Address is a 5-byte pipe address.
type Address [5]byte

func (a Address) String() string {
	return fmt.Sprintf("%x", a[:])
}

// Hard-coded symmetric address pair. The air unit listens on AirAddress
// and transmits to GroundAddress; the ground unit does the reverse.
var (
	AirAddress    = Address{0xd2, 0xf0, 0xf0, 0xf0, 0xf0}
	GroundAddress = Address{0xe1, 0xf0, 0xf0, 0xf0, 0xf0}
)

// ErrSendFailed is returned when a packet was not acknowledged.
var ErrSendFailed = errors.New("radio: send failed or timed out")

// ErrNoPacket is returned by Receive when nothing is pending.
var ErrNoPacket = errors.New("radio: no packet pending")

// Packet is one fixed-size frame. Byte 0 is the opcode.
type Packet [PayloadSize]byte

// Opcode returns the command byte.
func (p Packet) Opcode() byte {
	return p[0]
}

// NewPacket builds a zero-padded packet with the given opcode.
func NewPacket(opcode byte) Packet {
	var p Packet
	p[0] = opcode
	return p
}

// PacketFrom copies up to PayloadSize bytes of b into a zero-padded packet.
func PacketFrom(b []byte) Packet {
	var p Packet
	copy(p[:], b)
	return p
}

// Trimmed returns the payload with trailing zero padding removed.
func (p Packet) Trimmed() []byte {
	n := len(p)
	for n > 0 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// Transport is a packet radio.
type Transport interface {
	// HasPending reports whether a received packet is waiting.
	HasPending() bool

	// Receive returns the oldest pending packet.
	Receive() (Packet, error)

	// Send transmits a packet. Listening must be off.
	Send(p Packet) error

	// OpenTxPipe sets the destination address.
	OpenTxPipe(addr Address) error

	// OpenRxPipe enables a receive pipe on the given address.
	OpenRxPipe(pipe int, addr Address) error

	// SetListening switches between receive and transmit modes.
	SetListening(on bool) error

	// Close releases the hardware.
	Close() error
}

// Setup opens the pipes for a unit that listens on rx and sends to tx,
// then starts listening.
func Setup(t Transport, rx, tx Address) error {
	if err := t.OpenRxPipe(1, rx); err != nil {
		return fmt.Errorf("open rx pipe: %w", err)
	}
	if err := t.OpenTxPipe(tx); err != nil {
		return fmt.Errorf("open tx pipe: %w", err)
	}
	if err := t.SetListening(true); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	return nil
}

// Driver names accepted by Open.
const (
	DriverNRF24  = "nrf24"
	DriverSerial = "serial"
)

// Open opens the named driver with its settings.
func Open(driver string, nrf NRF24Config, ser SerialConfig) (Transport, error) {
	switch driver {
	case DriverNRF24:
		n, err := OpenNRF24(nrf)
		if err != nil {
			return nil, fmt.Errorf("init nrf24: %w", err)
		}
		return n, nil
	case DriverSerial:
		s, err := OpenSerial(ser)
		if err != nil {
			return nil, fmt.Errorf("init serial radio: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("radio: unknown driver %q", driver)
}
