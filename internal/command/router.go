package command

import (
	"strings"

	"github.com/sweeney/nodekit/internal/event"
)

// Category and event name announcing every accepted input line.
const (
	Category     = "serial"
	EventCommand = "command" // [line]
)

// Router publishes parsed commands on the bus.
type Router struct {
	bus *event.Bus
}

// NewRouter creates a Router publishing on bus.
func NewRouter(bus *event.Bus) *Router {
	return &Router{bus: bus}
}

// Dispatch parses line and publishes it twice: the raw line as
// serial/command, then (namespace, "@"+command, params). Malformed input is
// reported on the debug channel and dropped.
func (r *Router) Dispatch(line string) error {
	line = strings.TrimSpace(line)
	cmd, err := Parse(line)
	if err != nil {
		r.bus.Debug("Invalid command format: "+line, 0)
		return err
	}
	r.bus.Publish(Category, EventCommand, line)
	r.bus.Publish(cmd.Namespace, "@"+cmd.Name, cmd.Params...)
	return nil
}
