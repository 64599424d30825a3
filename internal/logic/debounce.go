// Package logic contains pure input-conditioning logic for GPIO devices.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of an input.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// FromBool maps true to StateOn.
func FromBool(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// Counts tracks transitions since startup.
type Counts struct {
	On  int
	Off int
}

// Debouncer tracks one input and reports debounced transitions. The first
// stable level becomes the baseline and is not reported as a transition.
type Debouncer struct {
	duration time.Duration

	stable       State
	pending      State
	pendingSince time.Time
	baselined    bool
	counts       Counts
}

// NewDebouncer creates a Debouncer requiring a level to hold for duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Process feeds one sample. It returns the new stable state and true when
// a transition completed.
func (d *Debouncer) Process(on bool, now time.Time) (State, bool) {
	s := FromBool(on)

	if !d.baselined {
		if d.pending != s {
			// First sample, or level changed during baseline: restart
			d.pending = s
			d.pendingSince = now
		}
		if now.Sub(d.pendingSince) >= d.duration {
			d.stable = s
			d.baselined = true
			d.pending = ""
		}
		return d.stable, false
	}

	if s == d.stable {
		// No change from stable state, clear any pending
		d.pending = ""
		return d.stable, false
	}

	if d.pending != s {
		d.pending = s
		d.pendingSince = now
	}
	if now.Sub(d.pendingSince) < d.duration {
		return d.stable, false
	}

	d.stable = s
	d.pending = ""
	if s == StateOn {
		d.counts.On++
	} else {
		d.counts.Off++
	}
	return d.stable, true
}

// IsBaselined returns whether the baseline has been established.
func (d *Debouncer) IsBaselined() bool { return d.baselined }

// State returns the current stable state ("" before baseline).
func (d *Debouncer) State() State { return d.stable }

// Counts returns transitions since startup.
func (d *Debouncer) Counts() Counts { return d.counts }
