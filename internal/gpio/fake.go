package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted line levels.
type FakeInput struct {
	mu sync.Mutex

	// Levels contains scripted values to return.
	// Each call to Level() consumes the next value.
	Levels []bool

	index int

	// Reads counts calls to Level().
	Reads int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Level().
	ReadError error
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels []bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Level returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	v := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return v, nil
}

// ReadCount returns the number of Level() calls so far.
func (f *FakeInput) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads
}

// SetError sets or clears the read error.
func (f *FakeInput) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds the input to the first level.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Reads = 0
	f.Closed = false
	f.mu.Unlock()
}

// FakeOutput records driven levels.
type FakeOutput struct {
	mu sync.Mutex

	On      bool
	Toggles int
	History []bool
	Closed  bool

	// SetError, if set, is returned by Set and Toggle.
	SetError error
}

// NewFakeOutput creates a FakeOutput, initially low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.History = append(f.History, on)
	return nil
}

// Toggle inverts the recorded level.
func (f *FakeOutput) Toggle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.On = !f.On
	f.Toggles++
	f.History = append(f.History, f.On)
	return nil
}

// ToggleCount returns the number of toggles so far.
func (f *FakeOutput) ToggleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Toggles
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeEdges is an EdgeSource fed by the test.
type FakeEdges struct {
	C      chan Edge
	Closed bool
}

// NewFakeEdges creates a FakeEdges with the given buffer.
func NewFakeEdges(buffer int) *FakeEdges {
	return &FakeEdges{C: make(chan Edge, buffer)}
}

// Edges returns the scripted channel.
func (f *FakeEdges) Edges() <-chan Edge { return f.C }

// Close marks the source closed.
func (f *FakeEdges) Close() error {
	f.Closed = true
	return nil
}
