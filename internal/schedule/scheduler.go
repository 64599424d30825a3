// Package schedule implements the cooperative job engine: one-shot timeouts,
// repeating intervals and calendar jobs, all polled from the driving loop.
//
// Nothing here runs on its own goroutine. Jobs only fire from Loop, on the
// caller's goroutine, one after another. A callback that blocks stalls every
// other job, and a callback that panics is not recovered: there is no
// isolation between jobs.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCalendar is returned when a calendar job has an out-of-range
// hour, minute or weekday.
var ErrInvalidCalendar = errors.New("schedule: invalid calendar spec")

// ID identifies a job. IDs come from a counter and are never reused, so a
// stale ID can never cancel an unrelated job. The zero ID is never issued.
type ID int

type timeout struct {
	id     ID
	start  time.Time
	delay  time.Duration
	fn     func()
	active bool
}

type interval struct {
	id       ID
	lastFire time.Time
	period   time.Duration
	fn       func()
	active   bool
}

type calendarJob struct {
	id        ID
	hour      int
	minute    int
	days      uint8 // bit n set = time.Weekday(n)
	fn        func()
	active    bool
	lastFired time.Time // minute the job last fired in
}

// Scheduler holds the three job collections.
type Scheduler struct {
	clock Clock
	wall  WallClock

	nextID    ID
	timeouts  []*timeout
	intervals []*interval
	calendar  []*calendarJob
	running   bool
}

// New creates a Scheduler. wall may be nil, in which case calendar jobs
// never fire.
func New(clock Clock, wall WallClock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock, wall: wall}
}

func (s *Scheduler) newID() ID {
	s.nextID++
	return s.nextID
}

// SetTimeout arms fn to run once, on the first Loop at least delay after now.
func (s *Scheduler) SetTimeout(fn func(), delay time.Duration) ID {
	id := s.newID()
	s.timeouts = append(s.timeouts, &timeout{
		id:     id,
		start:  s.clock.Now(),
		delay:  delay,
		fn:     fn,
		active: true,
	})
	return id
}

// SetInterval arms fn to run every period. After each firing the period is
// measured from the firing tick, so late ticks cause drift, never bursts.
func (s *Scheduler) SetInterval(fn func(), period time.Duration) ID {
	id := s.newID()
	s.intervals = append(s.intervals, &interval{
		id:       id,
		lastFire: s.clock.Now(),
		period:   period,
		fn:       fn,
		active:   true,
	})
	return id
}

// SetCalendar arms fn to run once per matching minute when the wall clock
// reads hour:minute on one of days. With no days given the job runs daily.
func (s *Scheduler) SetCalendar(fn func(), hour, minute int, days ...time.Weekday) (ID, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidCalendar, hour, minute)
	}
	var mask uint8
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return 0, fmt.Errorf("%w: weekday %d", ErrInvalidCalendar, d)
		}
		mask |= 1 << uint(d)
	}
	if mask == 0 {
		mask = 0x7f
	}

	id := s.newID()
	s.calendar = append(s.calendar, &calendarJob{
		id:     id,
		hour:   hour,
		minute: minute,
		days:   mask,
		fn:     fn,
		active: true,
	})
	return id, nil
}

// ClearTimeout cancels a timeout. Unknown or already fired IDs are ignored.
func (s *Scheduler) ClearTimeout(id ID) {
	for _, t := range s.timeouts {
		if t.id == id {
			t.active = false
			return
		}
	}
}

// ClearInterval cancels an interval. Unknown IDs are ignored.
func (s *Scheduler) ClearInterval(id ID) {
	for _, iv := range s.intervals {
		if iv.id == id {
			iv.active = false
			return
		}
	}
}

// ClearCalendar cancels a calendar job. Unknown IDs are ignored.
func (s *Scheduler) ClearCalendar(id ID) {
	for _, c := range s.calendar {
		if c.id == id {
			c.active = false
			return
		}
	}
}

// Active reports whether id refers to a job that can still fire.
func (s *Scheduler) Active(id ID) bool {
	for _, t := range s.timeouts {
		if t.id == id {
			return t.active
		}
	}
	for _, iv := range s.intervals {
		if iv.id == id {
			return iv.active
		}
	}
	for _, c := range s.calendar {
		if c.id == id {
			return c.active
		}
	}
	return false
}

// Pending returns the number of jobs that can still fire.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.timeouts {
		if t.active {
			n++
		}
	}
	for _, iv := range s.intervals {
		if iv.active {
			n++
		}
	}
	for _, c := range s.calendar {
		if c.active {
			n++
		}
	}
	return n
}

// Loop runs one scheduler pass: intervals, then timeouts, then calendar jobs.
// Jobs added by callbacks during the pass are first examined on the next
// pass. Calling Loop from inside a callback is a no-op.
func (s *Scheduler) Loop() {
	if s.running {
		return
	}
	s.running = true
	defer func() { s.running = false }()

	s.checkIntervals()
	s.checkTimeouts()
	s.checkCalendar()
	s.compact()
}

func (s *Scheduler) checkIntervals() {
	n := len(s.intervals)
	for i := 0; i < n; i++ {
		iv := s.intervals[i]
		if !iv.active {
			continue
		}
		now := s.clock.Now()
		if now.Sub(iv.lastFire) < iv.period {
			continue
		}
		iv.lastFire = now
		iv.fn()
	}
}

func (s *Scheduler) checkTimeouts() {
	n := len(s.timeouts)
	for i := 0; i < n; i++ {
		t := s.timeouts[i]
		if !t.active {
			continue
		}
		if s.clock.Now().Sub(t.start) < t.delay {
			continue
		}
		t.active = false
		t.fn()
	}
}

func (s *Scheduler) checkCalendar() {
	if s.wall == nil {
		return
	}
	now, ok := s.wall.Now()
	if !ok {
		return
	}
	minute := now.Truncate(time.Minute)
	day := uint8(1) << uint(now.Weekday())

	n := len(s.calendar)
	for i := 0; i < n; i++ {
		c := s.calendar[i]
		if !c.active || c.hour != now.Hour() || c.minute != now.Minute() || c.days&day == 0 {
			continue
		}
		if c.lastFired.Equal(minute) {
			continue
		}
		c.lastFired = minute
		c.fn()
	}
}

// compact drops jobs that can no longer fire. IDs are not positions, so
// dropping entries never changes which job an ID refers to.
func (s *Scheduler) compact() {
	ts := s.timeouts[:0]
	for _, t := range s.timeouts {
		if t.active {
			ts = append(ts, t)
		}
	}
	clear(s.timeouts[len(ts):])
	s.timeouts = ts

	ivs := s.intervals[:0]
	for _, iv := range s.intervals {
		if iv.active {
			ivs = append(ivs, iv)
		}
	}
	clear(s.intervals[len(ivs):])
	s.intervals = ivs

	cs := s.calendar[:0]
	for _, c := range s.calendar {
		if c.active {
			cs = append(cs, c)
		}
	}
	clear(s.calendar[len(cs):])
	s.calendar = cs
}
