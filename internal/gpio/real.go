//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine is one requested line on a Linux GPIO character device.
type RealLine struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	output bool
}

func openLine(chipName string, offset int, opts ...gpiocdev.LineReqOption) (*RealLine, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return &RealLine{chip: chip, line: line}, nil
}

// OpenInput requests offset as an input with pull-down to match Pi boot defaults.
func OpenInput(chipName string, offset int, activeLow bool) (*RealLine, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	return openLine(chipName, offset, opts...)
}

// OpenOutput requests offset as an output driven to initial.
func OpenOutput(chipName string, offset int, activeLow, initial bool) (*RealLine, error) {
	value := 0
	if initial {
		value = 1
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(value)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	l, err := openLine(chipName, offset, opts...)
	if err != nil {
		return nil, err
	}
	l.output = true
	return l, nil
}

// Read returns the logical line level.
func (r *RealLine) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v == 1, nil
}

// Write sets the logical line level.
func (r *RealLine) Write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures the line to input with pull-down (matching Pi boot defaults)
// before closing to ensure clean state for system shutdown/reboot.
func (r *RealLine) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
