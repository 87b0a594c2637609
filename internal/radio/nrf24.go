package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// nRF24L01+ registers.
const (
	regConfig     = 0x00
	regEnRxAddr   = 0x02
	regSetupAW    = 0x03
	regSetupRetr  = 0x04
	regRFCh       = 0x05
	regRFSetup    = 0x06
	regStatus     = 0x07
	regRxAddrP0   = 0x0A
	regTxAddr     = 0x10
	regRxPwP0     = 0x11
	regFifoStatus = 0x17
	regDynPD      = 0x1C
)

// Commands.
const (
	cmdRRegister  = 0x00
	cmdWRegister  = 0x20
	cmdRRxPayload = 0x61
	cmdWTxPayload = 0xA0
	cmdFlushTx    = 0xE1
	cmdFlushRx    = 0xE2
	cmdNop        = 0xFF
)

// Register bits.
const (
	cfgPrimRX = 0x01
	cfgPwrUp  = 0x02
	cfgCRCO   = 0x04
	cfgEnCRC  = 0x08

	stMaxRT = 0x10
	stTxDS  = 0x20
	stRxDR  = 0x40

	fifoRxEmpty = 0x01

	rfPower0dBm = 0x06
	rfSpeed250K = 0x20
)

// DefaultSendTimeout bounds how long Send waits for an acknowledgement.
const DefaultSendTimeout = 500 * time.Millisecond

// spiTx is the subset of spi.Conn the driver needs.
type spiTx interface {
	Tx(w, r []byte) error
}

// cePin is the subset of gpio.PinOut the driver needs.
type cePin interface {
	Out(l gpio.Level) error
}

// NRF24 drives an nRF24L01+ transceiver over SPI.
type NRF24 struct {
	mu          sync.Mutex
	conn        spiTx
	ce          cePin
	port        spi.PortCloser
	payload     int
	pipe0Rx     *Address
	SendTimeout time.Duration
}

// NRF24Config selects the SPI port and CE pin for OpenNRF24.
type NRF24Config struct {
	SPIPort string // "" selects the first port
	CEPin   string // periph pin name, e.g. "GPIO25"
	Channel int
	SpeedHz int64
}

// OpenNRF24 initializes periph, opens the SPI port and configures the
// chip for fixed PayloadSize frames on the given channel.
func OpenNRF24(cfg NRF24Config) (*NRF24, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.SPIPort, err)
	}
	speed := physic.Frequency(cfg.SpeedHz) * physic.Hertz
	if speed <= 0 {
		speed = 4 * physic.MegaHertz
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	ce := gpioreg.ByName(cfg.CEPin)
	if ce == nil {
		port.Close()
		return nil, fmt.Errorf("ce pin %q not found", cfg.CEPin)
	}
	n, err := newNRF24(conn, ce, cfg.Channel)
	if err != nil {
		port.Close()
		return nil, err
	}
	n.port = port
	return n, nil
}

func newNRF24(conn spiTx, ce cePin, channel int) (*NRF24, error) {
	n := &NRF24{
		conn:        conn,
		ce:          ce,
		payload:     PayloadSize,
		SendTimeout: DefaultSendTimeout,
	}
	if err := n.ce.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("ce low: %w", err)
	}
	if err := n.init(channel); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *NRF24) init(channel int) error {
	// 5-byte addresses. Reading it back doubles as a presence check.
	if _, err := n.writeReg(regSetupAW, 0x03); err != nil {
		return err
	}
	aw, err := n.readReg(regSetupAW)
	if err != nil {
		return err
	}
	if aw != 0x03 {
		return errors.New("radio: nRF24L01+ not responding")
	}

	if channel > 125 {
		channel = 125
	}
	rf, err := n.readReg(regRFSetup)
	if err != nil {
		return err
	}
	cfg, err := n.readReg(regConfig)
	if err != nil {
		return err
	}

	steps := []struct {
		reg, val byte
	}{
		{regDynPD, 0},
		{regSetupRetr, (6 << 4) | 8}, // 1750us delay, 8 retries
		{regRFSetup, (rf & 0xD1) | rfPower0dBm | rfSpeed250K},
		{regConfig, cfg | cfgEnCRC | cfgCRCO},
		{regStatus, stRxDR | stTxDS | stMaxRT},
		{regRFCh, byte(channel)},
	}
	for _, s := range steps {
		if _, err := n.writeReg(s.reg, s.val); err != nil {
			return err
		}
	}
	if err := n.command(cmdFlushRx); err != nil {
		return err
	}
	return n.command(cmdFlushTx)
}

func (n *NRF24) command(cmd byte) error {
	r := make([]byte, 1)
	if err := n.conn.Tx([]byte{cmd}, r); err != nil {
		return fmt.Errorf("spi command 0x%02x: %w", cmd, err)
	}
	return nil
}

func (n *NRF24) readReg(reg byte) (byte, error) {
	r := make([]byte, 2)
	if err := n.conn.Tx([]byte{cmdRRegister | reg, cmdNop}, r); err != nil {
		return 0, fmt.Errorf("read reg 0x%02x: %w", reg, err)
	}
	return r[1], nil
}

// writeReg returns the STATUS byte clocked out during the write.
func (n *NRF24) writeReg(reg, val byte) (byte, error) {
	r := make([]byte, 2)
	if err := n.conn.Tx([]byte{cmdWRegister | reg, val}, r); err != nil {
		return 0, fmt.Errorf("write reg 0x%02x: %w", reg, err)
	}
	return r[0], nil
}

func (n *NRF24) writeRegBytes(reg byte, val []byte) error {
	w := append([]byte{cmdWRegister | reg}, val...)
	r := make([]byte, len(w))
	if err := n.conn.Tx(w, r); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", reg, err)
	}
	return nil
}

// OpenTxPipe sets the transmit address. Pipe 0 receives the auto-ack.
func (n *NRF24) OpenTxPipe(addr Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writeRegBytes(regRxAddrP0, addr[:]); err != nil {
		return err
	}
	if err := n.writeRegBytes(regTxAddr, addr[:]); err != nil {
		return err
	}
	_, err := n.writeReg(regRxPwP0, byte(n.payload))
	return err
}

// OpenRxPipe enables pipe 0..5 on addr. Pipes 2..5 share the upper
// address bytes of pipe 1 and only take the first byte.
func (n *NRF24) OpenRxPipe(pipe int, addr Address) error {
	if pipe < 0 || pipe > 5 {
		return fmt.Errorf("radio: invalid pipe %d", pipe)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if pipe == 0 {
		a := addr
		n.pipe0Rx = &a
	}
	reg := byte(regRxAddrP0 + pipe)
	if pipe < 2 {
		if err := n.writeRegBytes(reg, addr[:]); err != nil {
			return err
		}
	} else if _, err := n.writeReg(reg, addr[0]); err != nil {
		return err
	}
	if _, err := n.writeReg(byte(regRxPwP0+pipe), byte(n.payload)); err != nil {
		return err
	}
	en, err := n.readReg(regEnRxAddr)
	if err != nil {
		return err
	}
	_, err = n.writeReg(regEnRxAddr, en|byte(1<<pipe))
	return err
}

// SetListening enters (PRIM_RX, CE high) or leaves receive mode.
func (n *NRF24) SetListening(on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !on {
		if err := n.ce.Out(gpio.Low); err != nil {
			return fmt.Errorf("ce low: %w", err)
		}
		if err := n.command(cmdFlushTx); err != nil {
			return err
		}
		return n.command(cmdFlushRx)
	}

	cfg, err := n.readReg(regConfig)
	if err != nil {
		return err
	}
	if _, err := n.writeReg(regConfig, cfg|cfgPwrUp|cfgPrimRX); err != nil {
		return err
	}
	if _, err := n.writeReg(regStatus, stRxDR|stTxDS|stMaxRT); err != nil {
		return err
	}
	if n.pipe0Rx != nil {
		// OpenTxPipe overwrites pipe 0; restore its receive address.
		if err := n.writeRegBytes(regRxAddrP0, n.pipe0Rx[:]); err != nil {
			return err
		}
	}
	if err := n.command(cmdFlushRx); err != nil {
		return err
	}
	if err := n.command(cmdFlushTx); err != nil {
		return err
	}
	if err := n.ce.Out(gpio.High); err != nil {
		return fmt.Errorf("ce high: %w", err)
	}
	time.Sleep(130 * time.Microsecond)
	return nil
}

// HasPending reports whether the RX FIFO holds a packet. SPI errors are
// reported as nothing pending.
func (n *NRF24) HasPending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	fifo, err := n.readReg(regFifoStatus)
	if err != nil {
		return false
	}
	return fifo&fifoRxEmpty == 0
}

// Receive reads one payload from the RX FIFO.
func (n *NRF24) Receive() (Packet, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	w := make([]byte, 1+n.payload)
	w[0] = cmdRRxPayload
	for i := 1; i < len(w); i++ {
		w[i] = cmdNop
	}
	r := make([]byte, len(w))
	if err := n.conn.Tx(w, r); err != nil {
		return Packet{}, fmt.Errorf("read payload: %w", err)
	}
	if _, err := n.writeReg(regStatus, stRxDR); err != nil {
		return Packet{}, err
	}
	return PacketFrom(r[1:]), nil
}

// Send transmits one packet and waits for the auto-ack.
func (n *NRF24) Send(p Packet) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	cfg, err := n.readReg(regConfig)
	if err != nil {
		return err
	}
	if _, err := n.writeReg(regConfig, (cfg|cfgPwrUp)&^cfgPrimRX); err != nil {
		return err
	}
	time.Sleep(150 * time.Microsecond)

	w := append([]byte{cmdWTxPayload}, p[:n.payload]...)
	r := make([]byte, len(w))
	if err := n.conn.Tx(w, r); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := n.ce.Out(gpio.High); err != nil {
		return fmt.Errorf("ce high: %w", err)
	}
	time.Sleep(15 * time.Microsecond)
	if err := n.ce.Out(gpio.Low); err != nil {
		return fmt.Errorf("ce low: %w", err)
	}

	timeout := n.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := n.readReg(regStatus)
		if err != nil {
			return err
		}
		if st&(stTxDS|stMaxRT) != 0 {
			if _, err := n.writeReg(regStatus, stRxDR|stTxDS|stMaxRT); err != nil {
				return err
			}
			n.powerDown()
			if st&stTxDS != 0 {
				return nil
			}
			n.command(cmdFlushTx)
			return ErrSendFailed
		}
		if time.Now().After(deadline) {
			n.powerDown()
			n.command(cmdFlushTx)
			return ErrSendFailed
		}
		time.Sleep(time.Millisecond)
	}
}

func (n *NRF24) powerDown() {
	if cfg, err := n.readReg(regConfig); err == nil {
		n.writeReg(regConfig, cfg&^cfgPwrUp)
	}
}

// Close leaves receive mode and releases the SPI port.
func (n *NRF24) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ce.Out(gpio.Low)
	n.powerDown()
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}
