package schedule

import "time"

// Clock is a monotonic time source used for elapsed-time jobs.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock. time.Now carries a monotonic reading,
// so elapsed computations are immune to wall-clock steps.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	t time.Time
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{t: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time { return c.t }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) { c.t = t }

// WallClock provides calendar time. The bool result is false until the time
// source is known to be valid (e.g. before network time sync).
type WallClock interface {
	Now() (time.Time, bool)
}

// SyncClock is a WallClock that becomes valid once Sync is called. It is
// driven by the network layer: a node only trusts its calendar after it has
// joined a network.
type SyncClock struct {
	clock  Clock
	loc    *time.Location
	synced bool
}

// NewSyncClock creates an unsynced wall clock reading from clock in loc.
// A nil loc means time.Local.
func NewSyncClock(clock Clock, loc *time.Location) *SyncClock {
	if loc == nil {
		loc = time.Local
	}
	return &SyncClock{clock: clock, loc: loc}
}

// Now returns the local time and whether it is valid.
func (c *SyncClock) Now() (time.Time, bool) {
	if !c.synced {
		return time.Time{}, false
	}
	return c.clock.Now().In(c.loc), true
}

// Sync marks the clock valid. Returns true if this call changed the state.
func (c *SyncClock) Sync() bool {
	if c.synced {
		return false
	}
	c.synced = true
	return true
}

// Synced reports whether the clock is valid.
func (c *SyncClock) Synced() bool { return c.synced }

// Location returns the time zone used for calendar evaluation.
func (c *SyncClock) Location() *time.Location { return c.loc }
