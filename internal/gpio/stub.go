//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// OpenInput returns an error on non-Linux platforms.
func OpenInput(chipName string, offset int, activeLow bool) (*RealLine, error) {
	return nil, errUnsupported
}

// OpenOutput returns an error on non-Linux platforms.
func OpenOutput(chipName string, offset int, activeLow, initial bool) (*RealLine, error) {
	return nil, errUnsupported
}

func (r *RealLine) Read() (bool, error) { return false, errUnsupported }
func (r *RealLine) Write(on bool) error { return errUnsupported }
func (r *RealLine) Close() error        { return nil }
