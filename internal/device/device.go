// Package device defines the peripheral capability interface the
// controller drives uniformly, the shared base behaviour, and the GPIO
// backed relay and switch devices.
package device

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/prefs"
)

// Device is an attached peripheral.
type Device interface {
	ID() string
	Name() string
	Topic() string
	Kind() string
	Init()
	Loop()
	ProcessEvent(e event.Event)
	ProcessCommand(cmd string, params []string) bool
	Info() []string
}

// CommandFunc handles one device command.
type CommandFunc func(params []string)

// Base carries what every device shares: a persisted name and topic, the
// topic subscription and a command table. Payloads arriving on the topic
// and "<id>:<command>" console input both run the command table.
type Base struct {
	bus   *event.Bus
	prefs *prefs.Preferences

	id    string
	kind  string
	name  string
	topic string

	commands map[string]CommandFunc
}

// NewBase creates a Base. Stored preferences override the given name and topic in Init.
func NewBase(bus *event.Bus, p *prefs.Preferences, id, kind, name, topic string) *Base {
	if name == "" {
		name = id
	}
	b := &Base{
		bus:      bus,
		prefs:    p,
		id:       id,
		kind:     kind,
		name:     name,
		topic:    topic,
		commands: make(map[string]CommandFunc),
	}
	b.AddCommand("name", func(params []string) {
		if len(params) == 0 {
			b.bus.Debug(b.id+" name: "+b.name, 0)
			return
		}
		if err := b.SetName(strings.Join(params, " ")); err != nil {
			b.bus.Debug(err.Error(), 0)
		}
	})
	b.AddCommand("topic", func(params []string) {
		if len(params) == 0 {
			b.bus.Debug(b.id+" topic: "+b.topic, 0)
			return
		}
		if err := b.SetTopic(params[0]); err != nil {
			b.bus.Debug(err.Error(), 0)
		}
	})
	b.AddCommand("info", func([]string) { b.debugLines(b.Info()) })
	b.AddCommand("help", func([]string) {
		b.bus.Debug(b.id+" commands: "+strings.Join(b.Commands(), ", "), 0)
	})
	return b
}

func (b *Base) ID() string    { return b.id }
func (b *Base) Name() string  { return b.name }
func (b *Base) Topic() string { return b.topic }
func (b *Base) Kind() string  { return b.kind }

// Bus returns the bus the device publishes on.
func (b *Base) Bus() *event.Bus { return b.bus }

func (b *Base) nameKey() string  { return b.id + "_name" }
func (b *Base) topicKey() string { return b.id + "_topic" }

// Init loads the stored name and topic and subscribes to the topic.
func (b *Base) Init() {
	b.name = b.prefs.GetString(b.nameKey(), b.name)
	b.topic = b.prefs.GetString(b.topicKey(), b.topic)
	if b.topic != "" {
		b.bus.Publish(mqtt.Category, mqtt.EventSubscribe, b.topic)
	}
}

// Loop does nothing by default.
func (b *Base) Loop() {}

// SetName stores a new display name.
func (b *Base) SetName(name string) error {
	if err := b.prefs.SetString(b.nameKey(), name); err != nil {
		return fmt.Errorf("%s: save name: %w", b.id, err)
	}
	b.name = name
	b.bus.Debug(b.id+" renamed to "+name, 1)
	return nil
}

// SetTopic stores a new topic and moves the subscription.
func (b *Base) SetTopic(topic string) error {
	if err := b.prefs.SetString(b.topicKey(), topic); err != nil {
		return fmt.Errorf("%s: save topic: %w", b.id, err)
	}
	if b.topic != "" {
		b.bus.Publish(mqtt.Category, mqtt.EventUnsubscribe, b.topic)
	}
	b.topic = topic
	if topic != "" {
		b.bus.Publish(mqtt.Category, mqtt.EventSubscribe, topic)
	}
	b.bus.Debug(b.id+" topic set to "+topic, 1)
	return nil
}

// AddCommand registers or replaces a command.
func (b *Base) AddCommand(name string, fn CommandFunc) {
	b.commands[name] = fn
}

// Commands returns the registered command names, sorted.
func (b *Base) Commands() []string {
	names := make([]string, 0, len(b.commands))
	for n := range b.commands {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ProcessCommand runs a command from the table.
func (b *Base) ProcessCommand(cmd string, params []string) bool {
	fn, ok := b.commands[cmd]
	if !ok {
		return false
	}
	fn(params)
	return true
}

// ProcessEvent handles "<id>:@cmd" events and MQTT payloads on the topic.
// Devices embedding Base and overriding ProcessCommand should call
// Dispatch instead so their own table is used.
func (b *Base) ProcessEvent(e event.Event) {
	b.Dispatch(e, b.ProcessCommand)
}

// Dispatch routes e to run when it addresses this device.
func (b *Base) Dispatch(e event.Event, run func(cmd string, params []string) bool) {
	switch {
	case e.Category == b.id && e.IsCommand():
		if !run(e.Command(), e.Params) {
			b.bus.Debug("Unknown "+b.id+" command: "+e.Command(), 0)
		}
	case e.Category == mqtt.Category && e.Name == mqtt.EventMessage && b.topic != "" && e.Param(0) == b.topic:
		fields := strings.Fields(e.Param(1))
		if len(fields) == 0 {
			return
		}
		if !run(strings.ToLower(fields[0]), fields[1:]) {
			b.bus.Debug("Unknown payload on "+b.topic+": "+fields[0], 1)
		}
	}
}

// PublishState publishes payload on "<topic>/<sub>", buffered while offline.
func (b *Base) PublishState(sub, payload string) {
	if b.topic == "" {
		return
	}
	b.bus.Publish(mqtt.Category, mqtt.EventPublishBuffered, b.topic+"/"+sub, payload)
}

func (b *Base) debugLines(lines []string) {
	for _, line := range lines {
		b.bus.Debug(line, 0)
	}
}

// Info returns human-readable status lines.
func (b *Base) Info() []string {
	return []string{
		"Device: " + b.id + " (" + b.kind + ")",
		"Name: " + b.name,
		"Topic: " + b.topic,
	}
}
