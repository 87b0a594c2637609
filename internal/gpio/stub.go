//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(pin int, pull Pull) (*RealInput, error) {
	return nil, errUnsupported
}

// Level is not implemented on non-Linux platforms.
func (r *RealInput) Level() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealInput) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(pin int) (*RealOutput, error) {
	return nil, errUnsupported
}

func (o *RealOutput) Set(on bool) error { return errUnsupported }
func (o *RealOutput) Toggle() error     { return errUnsupported }
func (o *RealOutput) Close() error      { return nil }

// RealEdges is not available on non-Linux platforms.
type RealEdges struct{}

// NewRealEdges returns an error on non-Linux platforms.
func NewRealEdges(pin int, pull Pull, buffer int) (*RealEdges, error) {
	return nil, errUnsupported
}

func (e *RealEdges) Edges() <-chan Edge { return nil }
func (e *RealEdges) Close() error       { return nil }
