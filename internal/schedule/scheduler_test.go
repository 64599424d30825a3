package schedule

import (
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // a Monday

func newTestScheduler() (*Scheduler, *FakeClock, *SyncClock) {
	clock := NewFakeClock(epoch)
	wall := NewSyncClock(clock, time.UTC)
	return New(clock, wall), clock, wall
}

func TestTimeoutFiresOnce(t *testing.T) {
	s, clock, _ := newTestScheduler()
	count := 0
	s.SetTimeout(func() { count++ }, 100*time.Millisecond)

	clock.Advance(99 * time.Millisecond)
	s.Loop()
	if count != 0 {
		t.Fatalf("fired early: count=%d", count)
	}

	clock.Advance(1 * time.Millisecond)
	s.Loop()
	if count != 1 {
		t.Fatalf("expected 1 firing at deadline, got %d", count)
	}

	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		s.Loop()
	}
	if count != 1 {
		t.Errorf("timeout fired again: count=%d", count)
	}
	if s.Pending() != 0 {
		t.Errorf("pending after firing: got %d, want 0", s.Pending())
	}
}

func TestIntervalDriftNoCatchUp(t *testing.T) {
	s, clock, _ := newTestScheduler()
	var fires []time.Time
	s.SetInterval(func() { fires = append(fires, clock.Now()) }, 100*time.Millisecond)

	// Late tick: fires at 130ms, next due at 230ms rather than 200ms.
	clock.Advance(130 * time.Millisecond)
	s.Loop()
	clock.Advance(80 * time.Millisecond) // 210ms
	s.Loop()
	if len(fires) != 1 {
		t.Fatalf("expected 1 firing by 210ms, got %d", len(fires))
	}
	clock.Advance(20 * time.Millisecond) // 230ms
	s.Loop()
	if len(fires) != 2 {
		t.Fatalf("expected 2 firings by 230ms, got %d", len(fires))
	}

	// Long pause: 500ms without ticks yields a single firing.
	clock.Advance(500 * time.Millisecond)
	s.Loop()
	s.Loop()
	if len(fires) != 3 {
		t.Errorf("expected exactly one firing after pause, got %d total", len(fires))
	}
}

func TestClearInterval(t *testing.T) {
	s, clock, _ := newTestScheduler()
	count := 0
	id := s.SetInterval(func() { count++ }, 10*time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	s.Loop()
	s.ClearInterval(id)
	clock.Advance(10 * time.Millisecond)
	s.Loop()

	if count != 1 {
		t.Errorf("expected 1 firing before clear, got %d", count)
	}
	if s.Active(id) {
		t.Error("cleared interval still active")
	}
}

func TestHandlesStableAcrossRemoval(t *testing.T) {
	s, clock, _ := newTestScheduler()
	var fired []string

	a := s.SetTimeout(func() { fired = append(fired, "a") }, 10*time.Millisecond)
	b := s.SetTimeout(func() { fired = append(fired, "b") }, 50*time.Millisecond)
	c := s.SetTimeout(func() { fired = append(fired, "c") }, 50*time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	s.Loop() // a fires and is dropped

	// Clearing a stale handle must not touch b or c.
	s.ClearTimeout(a)
	s.ClearTimeout(b)

	d := s.SetTimeout(func() { fired = append(fired, "d") }, 0)
	if d == a || d == b || d == c {
		t.Fatalf("handle reused: d=%d a=%d b=%d c=%d", d, a, b, c)
	}

	clock.Advance(50 * time.Millisecond)
	s.Loop()

	want := []string{"a", "c", "d"}
	if len(fired) != len(want) {
		t.Fatalf("fired: got %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d]: got %s, want %s", i, fired[i], want[i])
		}
	}
}

func TestClearUnknownHandle(t *testing.T) {
	s, _, _ := newTestScheduler()
	// Must not panic.
	s.ClearTimeout(42)
	s.ClearInterval(-1)
	s.ClearCalendar(0)
}

func TestJobAddedDuringLoopWaitsForNextPass(t *testing.T) {
	s, clock, _ := newTestScheduler()
	inner := 0
	s.SetTimeout(func() {
		s.SetTimeout(func() { inner++ }, 0)
	}, 0)

	clock.Advance(time.Millisecond)
	s.Loop()
	if inner != 0 {
		t.Fatalf("job added during pass ran in the same pass")
	}
	s.Loop()
	if inner != 1 {
		t.Errorf("expected nested job to fire on next pass, got %d", inner)
	}
}

func TestClearDuringLoop(t *testing.T) {
	s, clock, _ := newTestScheduler()
	count := 0
	var second ID
	s.SetTimeout(func() { s.ClearTimeout(second) }, 0)
	second = s.SetTimeout(func() { count++ }, 0)

	clock.Advance(time.Millisecond)
	s.Loop()
	if count != 0 {
		t.Errorf("timeout cleared earlier in the same pass still fired")
	}
}

func TestLoopOrder(t *testing.T) {
	s, clock, _ := newTestScheduler()
	var order []string
	s.SetTimeout(func() { order = append(order, "timeout") }, 0)
	s.SetInterval(func() { order = append(order, "interval") }, time.Millisecond)
	if _, err := s.SetCalendar(func() { order = append(order, "calendar") }, 9, 0); err != nil {
		t.Fatal(err)
	}
	s.wall.(*SyncClock).Sync()

	clock.Advance(time.Millisecond)
	s.Loop()

	want := []string{"interval", "timeout", "calendar"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("order: got %v, want %v", order, want)
	}
}

func TestCalendarMatch(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"monday 09:30", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), 1},
		{"wednesday 09:30", time.Date(2026, 3, 4, 9, 30, 15, 0, time.UTC), 1},
		{"tuesday 09:30", time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), 0},
		{"monday 09:31", time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC), 0},
		{"monday 10:30", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, wall := newTestScheduler()
			wall.Sync()
			count := 0
			_, err := s.SetCalendar(func() { count++ }, 9, 30, time.Monday, time.Wednesday, time.Friday)
			if err != nil {
				t.Fatalf("SetCalendar: %v", err)
			}
			clock.Set(tt.at)
			s.Loop()
			if count != tt.want {
				t.Errorf("fired %d times, want %d", count, tt.want)
			}
		})
	}
}

func TestCalendarOncePerMinute(t *testing.T) {
	s, clock, wall := newTestScheduler()
	wall.Sync()
	count := 0
	if _, err := s.SetCalendar(func() { count++ }, 9, 30, time.Monday); err != nil {
		t.Fatal(err)
	}

	clock.Set(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	for i := 0; i < 60; i++ {
		s.Loop()
		clock.Advance(time.Second)
	}
	if count != 1 {
		t.Fatalf("expected 1 firing within the minute, got %d", count)
	}

	// Next week, same minute: fires again.
	clock.Set(time.Date(2026, 3, 9, 9, 30, 5, 0, time.UTC))
	s.Loop()
	if count != 2 {
		t.Errorf("expected firing the following week, got %d", count)
	}
}

func TestCalendarSkippedUntilSynced(t *testing.T) {
	s, clock, wall := newTestScheduler()
	count := 0
	if _, err := s.SetCalendar(func() { count++ }, 9, 30); err != nil {
		t.Fatal(err)
	}

	clock.Set(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	s.Loop()
	if count != 0 {
		t.Fatalf("calendar fired before wall clock was valid")
	}

	// Sync after the matching minute: no retroactive firing.
	clock.Set(time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC))
	wall.Sync()
	s.Loop()
	if count != 0 {
		t.Errorf("calendar fired retroactively")
	}
}

func TestSetCalendarInvalid(t *testing.T) {
	s, _, _ := newTestScheduler()
	cases := []struct {
		hour, minute int
		days         []time.Weekday
	}{
		{24, 0, nil},
		{-1, 0, nil},
		{0, 60, nil},
		{12, 0, []time.Weekday{7}},
	}
	for _, c := range cases {
		if _, err := s.SetCalendar(func() {}, c.hour, c.minute, c.days...); !errors.Is(err, ErrInvalidCalendar) {
			t.Errorf("SetCalendar(%d, %d, %v): got %v, want ErrInvalidCalendar", c.hour, c.minute, c.days, err)
		}
	}
}

func TestCancelAfterFiringSameTick(t *testing.T) {
	s, clock, _ := newTestScheduler()
	count := 0
	var id ID
	id = s.SetTimeout(func() {
		count++
		s.ClearTimeout(id)
	}, 0)

	clock.Advance(time.Millisecond)
	s.Loop()
	if count != 1 {
		t.Errorf("expected delivered firing to stand, got %d", count)
	}
}

func TestFormatTime(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 2, 7, 5, 9, 0, time.UTC))
	wall := NewSyncClock(clock, time.UTC)

	if got := FormatTime(wall, TimeLayout); got != "" {
		t.Errorf("unsynced: got %q, want empty", got)
	}

	wall.Sync()
	tests := []struct {
		layout string
		want   string
	}{
		{TimeLayout, "07:05:09"},
		{DateLayout, "02/03/2026"},
		{DateTimeLayout, "02/03/2026 07:05:09"},
		{"%a %b %y 100%%", "Mon Mar 26 100%"},
		{"%q", "%q"},
	}
	for _, tt := range tests {
		if got := FormatTime(wall, tt.layout); got != tt.want {
			t.Errorf("FormatTime(%q): got %q, want %q", tt.layout, got, tt.want)
		}
	}
}
