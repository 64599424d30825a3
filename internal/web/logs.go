package web

import "sync"

// DefaultLogLines is how many recent debug lines the page shows.
const DefaultLogLines = 20

// LogRing keeps the most recent debug lines and fans new ones out to live
// subscribers. Add never blocks: a subscriber that falls behind loses lines.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	max   int
	subs  map[chan string]struct{}
}

// NewLogRing creates a ring holding up to max lines.
func NewLogRing(max int) *LogRing {
	if max <= 0 {
		max = DefaultLogLines
	}
	return &LogRing{max: max, subs: make(map[chan string]struct{})}
}

// Add appends a line, evicting the oldest when full.
func (l *LogRing) Add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if len(l.lines) > l.max {
		l.lines = l.lines[len(l.lines)-l.max:]
	}
	for ch := range l.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Lines returns a copy of the buffered lines, oldest first.
func (l *LogRing) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Subscribe returns the current backlog and a channel receiving every
// later line. Call cancel to stop.
func (l *LogRing) Subscribe() (backlog []string, lines <-chan string, cancel func()) {
	ch := make(chan string, l.max)
	l.mu.Lock()
	backlog = make([]string, len(l.lines))
	copy(backlog, l.lines)
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
		})
	}
	return backlog, ch, cancel
}

// Subscribers returns the number of live subscribers.
func (l *LogRing) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
