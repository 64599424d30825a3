// Package event provides the synchronous in-process event bus that every
// other component publishes state changes on.
//
// Delivery is strictly synchronous and single-threaded: Publish invokes the
// category handlers in registration order, then the main handler, on the
// caller's goroutine. A handler that publishes causes depth-first nested
// delivery before the outer Publish returns. The Bus holds no locks and must
// only be used from the driving loop.
package event

// Event is a single notification. It is immutable once published.
type Event struct {
	Category string
	Name     string
	Params   []string
}

// Param returns the i-th parameter, or "" if there are fewer parameters.
func (e Event) Param(i int) string {
	if i < 0 || i >= len(e.Params) {
		return ""
	}
	return e.Params[i]
}

// IsCommand reports whether the event is a direct command invocation
// (its name starts with '@') rather than an organic event.
func (e Event) IsCommand() bool {
	return len(e.Name) > 0 && e.Name[0] == '@'
}

// Command returns the command name without its '@' prefix, or "" if the event
// is not a command.
func (e Event) Command() string {
	if !e.IsCommand() {
		return ""
	}
	return e.Name[1:]
}

// Handler receives events.
type Handler func(Event)

// DebugHandler receives debug/log lines. Filtering by verbosity is the
// handler's job, not the bus's.
type DebugHandler func(message string, level int, showTime bool)

// Bus maps event categories to ordered handler lists.
// A nil *Bus is valid: Publish and Debug become no-ops.
type Bus struct {
	handlers map[string][]Handler
	main     Handler
	debug    DebugHandler
	depth    int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Register appends h to the handlers of category. Registering the same
// handler twice results in two invocations per event.
func (b *Bus) Register(category string, h Handler) {
	b.handlers[category] = append(b.handlers[category], h)
}

// RegisterMain sets the catch-all handler, replacing any previous one.
func (b *Bus) RegisterMain(h Handler) {
	b.main = h
}

// RegisterDebug sets the debug sink, replacing any previous one.
func (b *Bus) RegisterDebug(h DebugHandler) {
	b.debug = h
}

// Publish delivers an event to the handlers of category, then to the main
// handler. Publishing to a category with no handlers is a no-op apart from
// the main handler.
func (b *Bus) Publish(category, name string, params ...string) {
	if b == nil {
		return
	}
	e := Event{Category: category, Name: name}
	if len(params) > 0 {
		e.Params = append([]string(nil), params...)
	}

	b.depth++
	defer func() { b.depth-- }()

	// Handlers registered during delivery are not invoked for this event.
	for _, h := range b.handlers[category] {
		h(e)
	}
	if b.main != nil {
		b.main(e)
	}
}

// Debug forwards a timestamped debug line to the debug sink.
func (b *Bus) Debug(message string, level int) {
	b.debugf(message, level, true)
}

// DebugNoTime forwards a debug line that should be rendered without a time prefix.
func (b *Bus) DebugNoTime(message string, level int) {
	b.debugf(message, level, false)
}

func (b *Bus) debugf(message string, level int, showTime bool) {
	if b == nil || b.debug == nil {
		return
	}
	b.debug(message, level, showTime)
}

