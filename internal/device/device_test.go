package device

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/gpio"
	"github.com/sweeney/nodekit/internal/logic"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
)

type env struct {
	bus    *event.Bus
	prefs  *prefs.Preferences
	events []event.Event
	debug  []string
}

func newEnv() *env {
	e := &env{bus: event.NewBus(), prefs: prefs.New(prefs.NewMemoryStore())}
	e.bus.RegisterMain(func(ev event.Event) { e.events = append(e.events, ev) })
	e.bus.RegisterDebug(func(msg string, level int, showTime bool) { e.debug = append(e.debug, msg) })
	return e
}

func (e *env) find(category, name string) []event.Event {
	var out []event.Event
	for _, ev := range e.events {
		if ev.Category == category && ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestBaseInitLoadsPrefsAndSubscribes(t *testing.T) {
	e := newEnv()
	e.prefs.SetString("lamp_name", "Porch lamp")
	e.prefs.SetString("lamp_topic", "porch/lamp")

	b := NewBase(e.bus, e.prefs, "lamp", "relay", "", "default/topic")
	if b.Name() != "lamp" {
		t.Errorf("default name: got %q", b.Name())
	}
	b.Init()

	if b.Name() != "Porch lamp" || b.Topic() != "porch/lamp" {
		t.Errorf("after Init: name %q topic %q", b.Name(), b.Topic())
	}
	subs := e.find(mqtt.Category, mqtt.EventSubscribe)
	if len(subs) != 1 || subs[0].Param(0) != "porch/lamp" {
		t.Errorf("subscribe events: %v", subs)
	}
}

func TestBaseSetTopicMovesSubscription(t *testing.T) {
	e := newEnv()
	b := NewBase(e.bus, e.prefs, "lamp", "relay", "", "old/topic")
	b.Init()
	e.events = nil

	b.ProcessEvent(event.Event{Category: "lamp", Name: "@topic", Params: []string{"new/topic"}})

	if b.Topic() != "new/topic" || e.prefs.GetString("lamp_topic", "") != "new/topic" {
		t.Errorf("topic %q stored %q", b.Topic(), e.prefs.GetString("lamp_topic", ""))
	}
	unsub := e.find(mqtt.Category, mqtt.EventUnsubscribe)
	sub := e.find(mqtt.Category, mqtt.EventSubscribe)
	if len(unsub) != 1 || unsub[0].Param(0) != "old/topic" || len(sub) != 1 || sub[0].Param(0) != "new/topic" {
		t.Errorf("unsub %v sub %v", unsub, sub)
	}
}

func TestBaseUnknownCommand(t *testing.T) {
	e := newEnv()
	b := NewBase(e.bus, e.prefs, "lamp", "relay", "", "")
	b.ProcessEvent(event.Event{Category: "lamp", Name: "@explode"})

	if len(e.debug) != 1 || e.debug[0] != "Unknown lamp command: explode" {
		t.Errorf("debug: %v", e.debug)
	}
	// Events for other categories are ignored.
	b.ProcessEvent(event.Event{Category: "door", Name: "@explode"})
	if len(e.debug) != 1 {
		t.Errorf("reacted to another device's command: %v", e.debug)
	}
}

func newTestRelay(e *env) (*Relay, *gpio.FakeLine) {
	line := gpio.NewFakeLine()
	r := NewRelay(e.bus, e.prefs, "lamp", "Lamp", "home/lamp", line)
	e.bus.RegisterMain(func(ev event.Event) {
		e.events = append(e.events, ev)
		r.ProcessEvent(ev)
	})
	return r, line
}

func TestRelayCommands(t *testing.T) {
	e := newEnv()
	r, line := newTestRelay(e)
	r.Init()

	if r.On() || len(line.Writes) != 1 || line.Writes[0] {
		t.Fatalf("Init should drive the line off, writes %v", line.Writes)
	}

	e.bus.Publish("lamp", "@on")
	if !r.On() || !line.Level() {
		t.Error("lamp:on did not switch on")
	}
	e.bus.Publish("lamp", "@toggle")
	if r.On() {
		t.Error("toggle did not switch off")
	}

	// MQTT payloads on the device topic run the same commands.
	e.bus.Publish(mqtt.Category, mqtt.EventMessage, "home/lamp", "ON")
	if !r.On() {
		t.Error("MQTT payload ON ignored")
	}
	e.bus.Publish(mqtt.Category, mqtt.EventMessage, "other/topic", "off")
	if !r.On() {
		t.Error("payload for another topic applied")
	}

	states := e.find(mqtt.Category, mqtt.EventPublishBuffered)
	last := states[len(states)-1]
	if last.Param(0) != "home/lamp/state" || last.Param(1) != "ON" {
		t.Errorf("last state publish: %v", last.Params)
	}
	if got := e.find("lamp", EventState); len(got) != len(states) {
		t.Errorf("state events %d vs publishes %d", len(got), len(states))
	}
}

func TestRelayWriteFailure(t *testing.T) {
	e := newEnv()
	r, line := newTestRelay(e)
	line.WriteError = errors.New("line busy")

	if err := r.Set(true); err == nil {
		t.Fatal("expected error")
	}
	if r.On() {
		t.Error("state changed despite write failure")
	}
	if len(e.find(mqtt.Category, mqtt.EventPublishBuffered)) != 0 {
		t.Error("state published despite write failure")
	}
}

func TestSwitchDebouncedTransitions(t *testing.T) {
	e := newEnv()
	clock := schedule.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	// Baseline OFF, a one-sample glitch, then a held change.
	line := gpio.NewFakeLine(false, false, false, true, false, true, true, true, true)
	s := NewSwitch(e.bus, e.prefs, "door", "", "home/door", line, logic.NewDebouncer(100*time.Millisecond), clock)
	s.Init()

	for range 9 {
		s.Loop()
		clock.Advance(50 * time.Millisecond)
	}

	pubs := e.find(mqtt.Category, mqtt.EventPublishBuffered)
	if len(pubs) != 1 || pubs[0].Param(0) != "home/door/state" || pubs[0].Param(1) != "ON" {
		t.Errorf("state publishes: %v", pubs)
	}
	if s.State() != logic.StateOn {
		t.Errorf("state: got %v", s.State())
	}
}

func TestSwitchReadErrorReportedOnce(t *testing.T) {
	e := newEnv()
	line := gpio.NewFakeLine(true)
	line.ReadError = errors.New("gone")
	s := NewSwitch(e.bus, e.prefs, "door", "", "", line, logic.NewDebouncer(0), nil)

	s.Loop()
	s.Loop()
	if len(e.debug) != 1 {
		t.Errorf("debug lines: %v", e.debug)
	}
}

func TestRegistry(t *testing.T) {
	e := newEnv()
	reg := NewRegistry()
	lamp := NewRelay(e.bus, e.prefs, "lamp", "Lamp", "home/lamp", gpio.NewFakeLine())
	door := NewSwitch(e.bus, e.prefs, "door", "Front door", "home/door", gpio.NewFakeLine(false), logic.NewDebouncer(0), nil)

	if err := reg.Add(lamp); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(door); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(NewRelay(e.bus, e.prefs, "lamp", "", "", gpio.NewFakeLine())); err == nil {
		t.Error("duplicate id accepted")
	}

	if reg.Len() != 2 || reg.All()[0].ID() != "lamp" || reg.All()[1].ID() != "door" {
		t.Errorf("order: %v", reg.All())
	}
	if reg.ByID("door") != Device(door) {
		t.Error("ByID")
	}
	if reg.ByName("Front door") != Device(door) {
		t.Error("ByName")
	}
	if reg.ByTopic("home/lamp") != Device(lamp) {
		t.Error("ByTopic")
	}
	if reg.ByTopic("") != nil || reg.ByID("nope") != nil {
		t.Error("missing lookups should return nil")
	}
}
