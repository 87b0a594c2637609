package radio

import "sync"

// Fake is an in-memory Transport for tests.
type Fake struct {
	mu sync.Mutex

	// Inbox holds packets waiting to be received.
	Inbox []Packet

	// Sent records every transmitted packet.
	Sent []Packet

	// Listening tracks the current mode; History records each change.
	Listening bool
	History   []bool

	TxAddr  Address
	RxPipes map[int]Address

	// SendError, if set, is returned by Send.
	SendError error

	// ReceiveError, if set, is returned by Receive.
	ReceiveError error

	Closed bool
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{RxPipes: make(map[int]Address)}
}

// Push queues packets for reception.
func (f *Fake) Push(p ...Packet) {
	f.mu.Lock()
	f.Inbox = append(f.Inbox, p...)
	f.mu.Unlock()
}

// Pending returns the number of queued packets.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Inbox)
}

// SentCount returns the number of transmitted packets.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *Fake) HasPending() bool {
	return f.Pending() > 0
}

func (f *Fake) Receive() (Packet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReceiveError != nil {
		return Packet{}, f.ReceiveError
	}
	if len(f.Inbox) == 0 {
		return Packet{}, ErrNoPacket
	}
	p := f.Inbox[0]
	f.Inbox = f.Inbox[1:]
	return p, nil
}

func (f *Fake) Send(p Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.Sent = append(f.Sent, p)
	return nil
}

func (f *Fake) OpenTxPipe(addr Address) error {
	f.mu.Lock()
	f.TxAddr = addr
	f.mu.Unlock()
	return nil
}

func (f *Fake) OpenRxPipe(pipe int, addr Address) error {
	f.mu.Lock()
	f.RxPipes[pipe] = addr
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetListening(on bool) error {
	f.mu.Lock()
	f.Listening = on
	f.History = append(f.History, on)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
