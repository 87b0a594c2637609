//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is the GPIO character device used for every line.
const Chip = "gpiochip0"

func pullOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullDown:
		return gpiocdev.WithPullDown
	case PullUp:
		return gpiocdev.WithPullUp
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// RealInput reads a line from actual hardware.
type RealInput struct {
	line *gpiocdev.Line
}

// NewRealInput requests pin as an input with the given bias.
func NewRealInput(pin int, pull Pull) (*RealInput, error) {
	line, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsInput, pullOption(pull))
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &RealInput{line: line}, nil
}

// Level returns the raw line level.
func (r *RealInput) Level() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line. The line is left as an input with pull-down,
// matching Pi boot defaults.
func (r *RealInput) Close() error {
	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives a line on actual hardware.
type RealOutput struct {
	mu   sync.Mutex
	line *gpiocdev.Line
	on   bool
}

// NewRealOutput requests pin as an output, initially low.
func NewRealOutput(pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

// Set drives the line.
func (o *RealOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set(on)
}

// Toggle inverts the line.
func (o *RealOutput) Toggle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set(!o.on)
}

func (o *RealOutput) set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	o.on = on
	return nil
}

// Close drives the line low and releases it.
func (o *RealOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.line.SetValue(0); err != nil {
		log.Printf("gpio: drive low on close: %v", err)
	}
	return o.line.Close()
}

// RealEdges watches a line for both edges using kernel event timestamps.
type RealEdges struct {
	line *gpiocdev.Line
	ch   chan Edge
	once sync.Once
	done chan struct{}
}

// NewRealEdges requests pin with edge detection. Events that arrive
// while the buffer is full are dropped; a lost edge only costs one
// measurement.
func NewRealEdges(pin int, pull Pull, buffer int) (*RealEdges, error) {
	e := &RealEdges{
		ch:   make(chan Edge, buffer),
		done: make(chan struct{}),
	}
	handler := func(evt gpiocdev.LineEvent) {
		edge := Edge{
			Rising: evt.Type == gpiocdev.LineEventRisingEdge,
			At:     evt.Timestamp,
		}
		select {
		case <-e.done:
		case e.ch <- edge:
		default:
		}
	}
	line, err := gpiocdev.RequestLine(Chip, pin,
		gpiocdev.AsInput,
		pullOption(pull),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("request edge pin %d: %w", pin, err)
	}
	e.line = line
	return e, nil
}

// Edges returns the event channel. It is never closed.
func (e *RealEdges) Edges() <-chan Edge {
	return e.ch
}

// Close stops edge delivery and releases the line.
func (e *RealEdges) Close() error {
	e.once.Do(func() { close(e.done) })
	return e.line.Close()
}
