// Package app composes the node: it owns the event bus and every manager,
// drives them from a single loop and holds the system command table.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sweeney/nodekit/internal/command"
	"github.com/sweeney/nodekit/internal/device"
	"github.com/sweeney/nodekit/internal/display"
	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/network"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
	"github.com/sweeney/nodekit/internal/status"
	"github.com/sweeney/nodekit/internal/web"
)

// ErrRestart is returned by Run when a restart was requested.
var ErrRestart = errors.New("restart requested")

// Categories handled by the controller itself.
const (
	CategorySys     = "sys"
	CategoryWeb     = "web"
	CategoryDisplay = "display"

	EventWebCommand = "command" // [line]
)

// Preference keys owned by the controller.
const (
	PrefHostname   = "hostname"
	PrefDebugLevel = "debug_level"
	PrefSleep      = "sleep_ms"
)

// Config wires the controller to its collaborators. Zero values get
// usable defaults except Prefs, Transport and MQTTClient.
type Config struct {
	Hostname     string
	DebugLevel   int
	IdleDelay    time.Duration // power-saving delay after each iteration
	Heartbeat    time.Duration // 0 disables
	Tick         time.Duration // minimum delay between iterations, default 10ms
	RestartDelay time.Duration // default 500ms
	AutoConnect  bool

	Prefs      *prefs.Preferences
	Clock      schedule.Clock
	Location   *time.Location
	Transport  network.Transport
	Network    network.Options
	MQTTClient mqtt.Client
	MQTT       mqtt.Options

	Display     *display.Buffer
	Tracker     *status.Tracker
	Logs        *web.LogRing
	WebCommands <-chan string
}

// Controller is the application controller. Apart from the channels that
// hand input over from source goroutines, everything runs on the goroutine
// calling Loop.
type Controller struct {
	cfg Config

	bus      *event.Bus
	prefs    *prefs.Preferences
	clock    schedule.Clock
	wall     *schedule.SyncClock
	sched    *schedule.Scheduler
	network  *network.Manager
	mqtt     *mqtt.Manager
	router   *command.Router
	console  *command.Console
	devices  *device.Registry
	display  *display.Buffer
	tracker  *status.Tracker
	logs     *web.LogRing
	webInput <-chan string

	hostname   string
	debugLevel int
	idleDelay  time.Duration
	suspended  bool
	inDebug    bool
	started    bool
	restart    bool
	lastStatus time.Time
}

// New builds a controller. Registration order on the bus is fixed here:
// main and debug handlers first, then the wifi and mqtt categories.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock{}
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "nodekit"
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 500 * time.Millisecond
	}
	if cfg.Logs == nil {
		cfg.Logs = web.NewLogRing(web.DefaultLogLines)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = status.NewTracker(cfg.Clock.Now(), status.Config{Hostname: cfg.Hostname})
	}

	c := &Controller{
		cfg:        cfg,
		bus:        event.NewBus(),
		prefs:      cfg.Prefs,
		clock:      cfg.Clock,
		devices:    device.NewRegistry(),
		display:    cfg.Display,
		tracker:    cfg.Tracker,
		logs:       cfg.Logs,
		webInput:   cfg.WebCommands,
		hostname:   cfg.Hostname,
		debugLevel: cfg.DebugLevel,
		idleDelay:  cfg.IdleDelay,
	}
	c.wall = schedule.NewSyncClock(cfg.Clock, cfg.Location)
	c.sched = schedule.New(cfg.Clock, c.wall)

	c.bus.RegisterMain(c.processEvent)
	c.bus.RegisterDebug(c.debugSink)

	c.network = network.NewManager(c.bus, c.prefs, cfg.Transport, cfg.Clock, cfg.Network)
	c.mqtt = mqtt.NewManager(c.bus, c.prefs, cfg.MQTTClient, cfg.Clock, cfg.MQTT)

	c.router = command.NewRouter(c.bus)
	c.console = command.NewConsole(c.router)
	c.console.OnIdleLine = func(string) { c.toggleIdle() }
	return c
}

func (c *Controller) Bus() *event.Bus                { return c.bus }
func (c *Controller) Prefs() *prefs.Preferences      { return c.prefs }
func (c *Controller) Scheduler() *schedule.Scheduler { return c.sched }
func (c *Controller) Wall() *schedule.SyncClock      { return c.wall }
func (c *Controller) Network() *network.Manager      { return c.network }
func (c *Controller) MQTT() *mqtt.Manager            { return c.mqtt }
func (c *Controller) Console() *command.Console      { return c.console }
func (c *Controller) Devices() *device.Registry      { return c.devices }
func (c *Controller) Hostname() string               { return c.hostname }
func (c *Controller) DebugLevel() int                { return c.debugLevel }

// AddDevice registers a device. Devices must be added before Init.
func (c *Controller) AddDevice(d device.Device) error {
	return c.devices.Add(d)
}

// Init loads preferences and starts every component.
func (c *Controller) Init() {
	c.hostname = c.prefs.GetString(PrefHostname, c.hostname)
	c.debugLevel = c.prefs.GetInt(PrefDebugLevel, c.debugLevel)
	c.idleDelay = time.Duration(c.prefs.GetInt(PrefSleep, int(c.idleDelay/time.Millisecond))) * time.Millisecond
	c.tracker.SetHostname(c.hostname)

	if c.display != nil {
		c.display.Clear()
		c.display.PrintLine(0, "Starting...")
	}

	c.network.Init(c.cfg.AutoConnect)
	c.mqtt.Init()
	// A link that came up during network Init was announced before the
	// messaging manager loaded its settings.
	if c.network.IsConnected() {
		c.mqtt.SetStatus(mqtt.StatusKeepConnected)
	}
	for _, d := range c.devices.All() {
		d.Init()
	}

	if c.display != nil {
		if c.network.IsConnected() {
			c.display.PrintLine(0, "WiFi connected")
		} else {
			c.display.PrintLine(0, "Not connected")
		}
	}
	if c.cfg.Heartbeat > 0 {
		c.sched.SetInterval(func() { c.publishStatus("HEARTBEAT", "") }, c.cfg.Heartbeat)
	}
	c.refreshStatus()

	c.bus.Debug("Init done!", 1)
	c.bus.Debug("Welcome on "+c.hostname, 0)
}

// Loop runs one iteration: input, scheduler, network, messaging (only while
// the link is up), devices.
func (c *Controller) Loop() {
	c.console.Loop()
	c.drainWeb()
	c.sched.Loop()
	c.network.Loop()
	if c.network.IsConnected() {
		c.mqtt.Loop()
	}
	for _, d := range c.devices.All() {
		d.Loop()
	}

	if now := c.clock.Now(); now.Sub(c.lastStatus) >= time.Second {
		c.lastStatus = now
		c.refreshStatus()
	}
}

func (c *Controller) drainWeb() {
	if c.webInput == nil {
		return
	}
	for i := 0; i < web.CommandQueueSize; i++ {
		select {
		case line := <-c.webInput:
			c.bus.Publish(CategoryWeb, EventWebCommand, line)
		default:
			return
		}
	}
}

// Restarting reports whether a restart has been requested.
func (c *Controller) Restarting() bool { return c.restart }

// IdleDelay returns the power-saving delay to apply after an iteration.
// It is zero while suspended by an empty input line.
func (c *Controller) IdleDelay() time.Duration {
	if c.suspended {
		return 0
	}
	return c.idleDelay
}

// Run initialises the controller and drives it until ctx is cancelled or a
// restart is requested, in which case it returns ErrRestart.
func (c *Controller) Run(ctx context.Context) error {
	c.Init()

	timer := time.NewTimer(c.cfg.Tick)
	defer timer.Stop()
	for {
		c.Loop()
		if c.restart {
			return ErrRestart
		}

		timer.Reset(c.cfg.Tick + c.IdleDelay())
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Shutdown publishes a retained SHUTDOWN status and releases devices and
// the broker session.
func (c *Controller) Shutdown(reason string) error {
	c.publishStatus("SHUTDOWN", reason)

	var errs []error
	for _, d := range c.devices.All() {
		if closer, ok := d.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", d.ID(), err))
			}
		}
	}
	c.cfg.MQTTClient.Disconnect()
	return errors.Join(errs...)
}

// processEvent is the main handler: it sees every event after the category
// handlers.
func (c *Controller) processEvent(e event.Event) {
	c.bus.Debug("Processing Event: "+e.Category+" / "+e.Name, 3)

	for _, d := range c.devices.All() {
		d.ProcessEvent(e)
	}

	switch e.Category {
	case network.Category:
		c.processNetworkEvent(e)
	case mqtt.Category:
		switch e.Name {
		case mqtt.EventConnected:
			c.bus.Debug("Connected to MQTT server: "+e.Param(0), 1)
			if !c.started {
				c.started = true
				c.publishStatus("STARTUP", "")
			}
		case mqtt.EventMessage:
			c.bus.Debug("Received MQTT message: "+e.Param(0)+" = "+e.Param(1), 2)
		}
	case CategorySys:
		if e.IsCommand() {
			c.processCommand(e.Command(), e.Params)
		}
	case CategoryDisplay:
		if e.IsCommand() {
			c.processDisplayCommand(e.Command(), e.Params)
		}
	case CategoryWeb:
		if e.Name == EventWebCommand {
			c.router.Dispatch(e.Param(0))
		}
	case command.Category:
	default:
		if e.IsCommand() && c.devices.ByID(e.Category) == nil {
			c.bus.Debug("Unknown namespace: "+e.Category, 0)
		}
	}
}

func (c *Controller) processNetworkEvent(e event.Event) {
	switch e.Name {
	case network.EventConnected, network.EventRecovered:
		c.bus.Debug("Connected to WiFi: "+e.Param(0), 1)
		c.bus.Debug("IP address: "+e.Param(1), 1)
		if c.wall.Sync() {
			c.bus.Debug("Time synchronised", 2)
		}
		c.mqtt.SetStatus(mqtt.StatusKeepConnected)
		c.printLine(0, "WiFi "+e.Param(1))
	case network.EventLost, network.EventDisconnected:
		c.mqtt.SetStatus(mqtt.StatusWaitingNetwork)
		c.printLine(0, "Not connected")
	case network.EventFailed, network.EventWrongCredentials:
		c.printLine(0, "WiFi failed")
	case network.EventAPStarted:
		c.printLine(0, "AP "+e.Param(0))
	}
}

func (c *Controller) printLine(row int, text string) {
	if c.display != nil {
		c.display.PrintLine(row, text)
	}
}
