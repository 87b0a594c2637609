package radio

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// Serial bridge framing: start byte, fixed payload, XOR checksum.
const (
	frameStart = 0x7E
	frameSize  = 1 + PayloadSize + 1
)

// encodeFrame wraps a packet for the serial bridge.
func encodeFrame(p Packet) []byte {
	f := make([]byte, 0, frameSize)
	f = append(f, frameStart)
	f = append(f, p[:]...)
	return append(f, checksum(p[:]))
}

func checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

// frameParser reassembles frames from a byte stream. Bytes before a
// start marker and frames with a bad checksum are dropped.
type frameParser struct {
	buf     [PayloadSize]byte
	n       int
	inFrame bool
	dropped int
}

// feed consumes one byte and returns a packet when a frame completes.
func (fp *frameParser) feed(b byte) (Packet, bool) {
	if !fp.inFrame {
		if b == frameStart {
			fp.inFrame = true
			fp.n = 0
		}
		return Packet{}, false
	}

	if fp.n < PayloadSize {
		fp.buf[fp.n] = b
		fp.n++
		return Packet{}, false
	}

	fp.inFrame = false
	if checksum(fp.buf[:]) != b {
		fp.dropped++
		return Packet{}, false
	}
	return Packet(fp.buf), true
}

// Serial is a Transport over a USB-serial radio bridge that exchanges
// framed fixed-size packets. Pipe and listening calls are accepted for
// interface compatibility; the bridge handles addressing itself.
type Serial struct {
	port io.ReadWriteCloser

	mu        sync.Mutex
	inbox     chan Packet
	listening bool
	closed    chan struct{}
	once      sync.Once
}

// SerialConfig selects the serial device for OpenSerial.
type SerialConfig struct {
	Device string
	Baud   int
	Queue  int
}

// OpenSerial opens the bridge device and starts the reader goroutine.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return newSerial(p, cfg.Queue), nil
}

func newSerial(p io.ReadWriteCloser, queue int) *Serial {
	if queue <= 0 {
		queue = 16
	}
	s := &Serial{
		port:   p,
		inbox:  make(chan Packet, queue),
		closed: make(chan struct{}),
	}
	go s.readLoop(p)
	return s
}

func (s *Serial) readLoop(r io.Reader) {
	var fp frameParser
	buf := make([]byte, 64)
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		n, err := r.Read(buf)
		if err != nil {
			select {
			case <-s.closed:
			default:
				log.Printf("radio: serial read: %v", err)
			}
			return
		}
		for _, b := range buf[:n] {
			p, ok := fp.feed(b)
			if !ok {
				continue
			}
			if !s.isListening() {
				continue
			}
			select {
			case s.inbox <- p:
			default:
				log.Printf("radio: serial queue full, dropping packet")
			}
		}
	}
}

func (s *Serial) isListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Serial) HasPending() bool {
	return len(s.inbox) > 0
}

func (s *Serial) Receive() (Packet, error) {
	select {
	case p := <-s.inbox:
		return p, nil
	default:
		return Packet{}, ErrNoPacket
	}
}

func (s *Serial) Send(p Packet) error {
	if _, err := s.port.Write(encodeFrame(p)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (s *Serial) OpenTxPipe(addr Address) error          { return nil }
func (s *Serial) OpenRxPipe(pipe int, addr Address) error { return nil }

func (s *Serial) SetListening(on bool) error {
	s.mu.Lock()
	s.listening = on
	s.mu.Unlock()
	return nil
}

// Close stops the reader and closes the port.
func (s *Serial) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.port.Close()
}
