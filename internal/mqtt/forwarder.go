package mqtt

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/sweeney/payload-release/internal/logic"
)

// DefaultQueue is the forwarder's event queue length.
const DefaultQueue = 64

// Forwarder hands receiver events to a Publisher from its own goroutine
// so a slow broker never stalls the control loops. Events are dropped
// when the queue is full.
type Forwarder struct {
	pub     Publisher
	events  chan logic.Event
	dropped uint64
}

// NewForwarder creates a Forwarder with the given queue length.
func NewForwarder(pub Publisher, queue int) *Forwarder {
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Forwarder{pub: pub, events: make(chan logic.Event, queue)}
}

// Observe queues an event without blocking.
func (f *Forwarder) Observe(e logic.Event) {
	select {
	case f.events <- e:
	default:
		if atomic.AddUint64(&f.dropped, 1) == 1 {
			log.Printf("mqtt: event queue full, dropping")
		}
	}
}

// Dropped returns how many events were discarded.
func (f *Forwarder) Dropped() uint64 {
	return atomic.LoadUint64(&f.dropped)
}

// Run publishes queued events until ctx is done, then flushes what is
// already queued.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-f.events:
					f.publish(e)
				default:
					return
				}
			}
		case e := <-f.events:
			f.publish(e)
		}
	}
}

func (f *Forwarder) publish(e logic.Event) {
	if err := f.pub.Publish(e); err != nil {
		log.Printf("mqtt: publish %s: %v", e.Type, err)
	}
}
