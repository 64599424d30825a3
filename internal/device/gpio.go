package device

import (
	"strconv"

	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/gpio"
	"github.com/sweeney/nodekit/internal/logic"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
)

// Event names published on a device's own category.
const (
	EventState = "state" // [ON|OFF]
)

// Relay drives an output line.
type Relay struct {
	*Base
	line gpio.Writer
	on   bool
}

// NewRelay creates a relay on line.
func NewRelay(bus *event.Bus, p *prefs.Preferences, id, name, topic string, line gpio.Writer) *Relay {
	r := &Relay{Base: NewBase(bus, p, id, "relay", name, topic), line: line}
	r.AddCommand("on", func([]string) { r.Set(true) })
	r.AddCommand("off", func([]string) { r.Set(false) })
	r.AddCommand("toggle", func([]string) { r.Set(!r.on) })
	r.AddCommand("state", func([]string) {
		r.Bus().Debug(r.ID()+": "+string(r.State()), 0)
	})
	r.AddCommand("info", func([]string) { r.debugLines(r.Info()) })
	return r
}

// Init drives the line off and announces the state.
func (r *Relay) Init() {
	r.Base.Init()
	r.Set(false)
}

// On reports the last successfully written level.
func (r *Relay) On() bool { return r.on }

// State returns the relay level as ON or OFF.
func (r *Relay) State() logic.State { return logic.FromBool(r.on) }

// Set drives the line. A write failure is reported and leaves the state unchanged.
func (r *Relay) Set(on bool) error {
	if err := r.line.Write(on); err != nil {
		r.Bus().Debug(r.ID()+": write failed: "+err.Error(), 0)
		return err
	}
	r.on = on
	state := string(logic.FromBool(on))
	r.PublishState("state", state)
	r.Bus().Publish(r.ID(), EventState, state)
	r.Bus().Debug(r.ID()+" "+state, 2)
	return nil
}

func (r *Relay) Info() []string {
	return append(r.Base.Info(), "State: "+string(r.State()))
}

// Close releases the line.
func (r *Relay) Close() error { return r.line.Close() }

// Switch samples an input line and reports debounced transitions.
type Switch struct {
	*Base
	line    gpio.Reader
	deb     *logic.Debouncer
	clock   schedule.Clock
	failing bool
}

// NewSwitch creates a switch on line.
func NewSwitch(bus *event.Bus, p *prefs.Preferences, id, name, topic string, line gpio.Reader, deb *logic.Debouncer, clock schedule.Clock) *Switch {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	s := &Switch{Base: NewBase(bus, p, id, "switch", name, topic), line: line, deb: deb, clock: clock}
	s.AddCommand("state", func([]string) {
		s.Bus().Debug(s.ID()+": "+string(s.State()), 0)
	})
	s.AddCommand("info", func([]string) { s.debugLines(s.Info()) })
	return s
}

// Loop samples the line once.
func (s *Switch) Loop() {
	v, err := s.line.Read()
	if err != nil {
		if !s.failing {
			s.failing = true
			s.Bus().Debug(s.ID()+": read failed: "+err.Error(), 0)
		}
		return
	}
	s.failing = false

	state, changed := s.deb.Process(v, s.clock.Now())
	if !changed {
		return
	}
	s.PublishState("state", string(state))
	s.Bus().Publish(s.ID(), EventState, string(state))
	s.Bus().Debug(s.ID()+" "+string(state), 1)
}

// State returns the debounced state, "" before the baseline is known.
func (s *Switch) State() logic.State { return s.deb.State() }

func (s *Switch) Info() []string {
	c := s.deb.Counts()
	return append(s.Base.Info(),
		"State: "+string(s.deb.State()),
		"Transitions: "+strconv.Itoa(c.On)+" on, "+strconv.Itoa(c.Off)+" off",
	)
}

// Close releases the line.
func (s *Switch) Close() error { return s.line.Close() }
