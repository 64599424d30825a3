package mqtt

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
)

// Category is the bus category for broker events and commands.
const Category = "mqtt"

// Events published by the Manager.
const (
	EventConnected    = "connected"    // [server]
	EventFailed       = "failed"       // [server, reason]
	EventDisconnected = "disconnected" // [server]
	EventMessage      = "message"      // [topic, payload]
)

// Events handled by the Manager, published by other components.
const (
	EventSubscribe       = "subscribe"        // [topic]
	EventUnsubscribe     = "unsubscribe"      // [topic]
	EventPublish         = "publish"          // [topic, payload]
	EventPublishBuffered = "publish_buffered" // [topic, payload]
)

// Preference keys.
const (
	PrefServer   = "mq_serv"
	PrefPort     = "mq_port"
	PrefUser     = "mq_user"
	PrefPassword = "mq_pass"
)

// Status is the externally driven connection intent.
type Status int

const (
	StatusDisabled       Status = 0
	StatusWaitingNetwork Status = 1
	StatusKeepConnected  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusWaitingNetwork:
		return "Waiting for network"
	case StatusKeepConnected:
		return "Keep connected"
	default:
		return "Unknown"
	}
}

// Options configures a Manager.
type Options struct {
	// ClientID defaults to "nodekit-" plus a random suffix.
	ClientID string
	// PollInterval is the reconnect check cadence. Default 1s.
	PollInterval time.Duration
}

// Manager keeps the broker session alive on top of the network link.
// All methods must be called from the driving loop.
type Manager struct {
	bus    *event.Bus
	prefs  *prefs.Preferences
	client Client
	clock  schedule.Clock
	opts   Options

	server   string
	port     int
	user     string
	password string

	status       Status
	lastPoll     time.Time
	polled       bool
	wasConnected bool

	subs    map[string]struct{}
	pending map[string]string
}

// NewManager creates a Manager and registers its handler on bus.
func NewManager(bus *event.Bus, p *prefs.Preferences, client Client, clock schedule.Clock, opts Options) *Manager {
	if opts.ClientID == "" {
		opts.ClientID = "nodekit-" + uuid.NewString()[:8]
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	m := &Manager{
		bus:     bus,
		prefs:   p,
		client:  client,
		clock:   clock,
		opts:    opts,
		port:    1883,
		subs:    make(map[string]struct{}),
		pending: make(map[string]string),
	}
	if bus != nil {
		bus.Register(Category, m.handleEvent)
	}
	return m
}

// SetDefaults seeds broker settings used when none are stored.
func (m *Manager) SetDefaults(server string, port int, user, password string) {
	m.server = server
	if port > 0 {
		m.port = port
	}
	m.user = user
	m.password = password
}

// Init loads broker settings from preferences. An empty server leaves the
// manager disabled.
func (m *Manager) Init() {
	m.server = m.prefs.GetString(PrefServer, m.server)
	m.port = m.prefs.GetInt(PrefPort, m.port)
	m.user = m.prefs.GetString(PrefUser, m.user)
	m.password = m.prefs.GetString(PrefPassword, m.password)
	if m.server == "" {
		m.status = StatusDisabled
		m.bus.Debug("MQTT disabled: no server", 1)
		return
	}
	m.status = StatusWaitingNetwork
}

// SetStatus changes the connection intent. Disabled stays disabled while
// no server is configured.
func (m *Manager) SetStatus(s Status) {
	if m.server == "" {
		s = StatusDisabled
	}
	m.status = s
}

// Status returns the connection intent.
func (m *Manager) Status() Status { return m.status }

// IsConnected reports whether the broker session is up.
func (m *Manager) IsConnected() bool { return m.client.IsConnected() }

// ClientID returns the id presented to the broker.
func (m *Manager) ClientID() string { return m.opts.ClientID }

// Loop reconnects on the poll cadence and delivers inbound messages.
func (m *Manager) Loop() {
	now := m.clock.Now()
	if !m.polled || now.Sub(m.lastPoll) >= m.opts.PollInterval {
		m.polled = true
		m.lastPoll = now
		if !m.client.IsConnected() {
			if m.wasConnected {
				m.wasConnected = false
				m.bus.Debug("MQTT connection lost", 1)
				m.bus.Publish(Category, EventDisconnected, m.server)
			}
			if m.status >= StatusKeepConnected {
				m.Reconnect()
			}
		}
	}
	m.client.Poll(m.deliver)
}

func (m *Manager) deliver(msg Message) {
	m.bus.Publish(Category, EventMessage, msg.Topic, truncatePayload(msg.Payload))
}

// Broker returns the broker URL.
func (m *Manager) Broker() string {
	return "tcp://" + net.JoinHostPort(m.server, strconv.Itoa(m.port))
}

// Reconnect performs the broker handshake. On success every subscription is
// re-issued and the pending publications are flushed (sorted by topic) and
// cleared. On failure the pending map is left untouched.
func (m *Manager) Reconnect() bool {
	if m.server == "" {
		m.bus.Debug("MQTT: no server configured", 0)
		return false
	}
	m.bus.Debug("MQTT connecting to "+m.server, 2)
	if err := m.client.Connect(m.Broker(), m.opts.ClientID, m.user, m.password); err != nil {
		m.bus.Debug("MQTT connection failed: "+err.Error(), 1)
		m.bus.Publish(Category, EventFailed, m.server, err.Error())
		return false
	}
	m.wasConnected = true

	for _, topic := range m.Subscriptions() {
		if err := m.client.Subscribe(topic); err != nil {
			m.bus.Debug("MQTT subscribe "+topic+": "+err.Error(), 1)
		}
	}

	topics := make([]string, 0, len(m.pending))
	for t := range m.pending {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	for _, t := range topics {
		if err := m.client.Publish(t, []byte(m.pending[t]), false); err != nil {
			m.bus.Debug("MQTT flush "+t+": "+err.Error(), 1)
		}
	}
	clear(m.pending)

	m.bus.Debug("MQTT connected to "+m.server, 1)
	m.bus.Publish(Category, EventConnected, m.server)
	return true
}

// Publish sends payload now, or drops it when offline. When debug is set
// the outcome is reported on the debug channel; log forwarding must call
// with debug false.
func (m *Manager) Publish(topic, payload string, debug bool) bool {
	return m.publish(topic, payload, false, debug)
}

// PublishRetained sends a retained payload now, or drops it when offline.
func (m *Manager) PublishRetained(topic, payload string) bool {
	return m.publish(topic, payload, true, false)
}

func (m *Manager) publish(topic, payload string, retained, debug bool) bool {
	if !m.client.IsConnected() {
		if debug {
			m.bus.Debug("MQTT offline, dropped "+topic, 2)
		}
		return false
	}
	if err := m.client.Publish(topic, []byte(payload), retained); err != nil {
		if debug {
			m.bus.Debug("MQTT publish "+topic+": "+err.Error(), 1)
		}
		return false
	}
	if debug {
		m.bus.Debug("MQTT > "+topic+" "+payload, 3)
	}
	return true
}

// PublishBuffered publishes now when connected; otherwise it records the
// payload as the pending value for topic, replacing any earlier one.
func (m *Manager) PublishBuffered(topic, payload string) {
	if m.client.IsConnected() {
		if err := m.client.Publish(topic, []byte(payload), false); err == nil {
			return
		}
	}
	m.pending[topic] = payload
}

// Pending returns the number of topics with an unsent payload.
func (m *Manager) Pending() int { return len(m.pending) }

// AddSubscription records topic and subscribes immediately if connected.
// Adding a known topic does nothing.
func (m *Manager) AddSubscription(topic string) {
	if topic == "" {
		return
	}
	if _, ok := m.subs[topic]; ok {
		return
	}
	m.subs[topic] = struct{}{}
	if m.client.IsConnected() {
		if err := m.client.Subscribe(topic); err != nil {
			m.bus.Debug("MQTT subscribe "+topic+": "+err.Error(), 1)
		}
	}
}

// RemoveSubscription forgets topic and unsubscribes immediately if connected.
func (m *Manager) RemoveSubscription(topic string) {
	if _, ok := m.subs[topic]; !ok {
		return
	}
	delete(m.subs, topic)
	if m.client.IsConnected() {
		if err := m.client.Unsubscribe(topic); err != nil {
			m.bus.Debug("MQTT unsubscribe "+topic+": "+err.Error(), 1)
		}
	}
}

// Subscriptions returns the subscription set, sorted.
func (m *Manager) Subscriptions() []string {
	out := make([]string, 0, len(m.subs))
	for t := range m.subs {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// SaveServer stores the broker host.
func (m *Manager) SaveServer(server string) error {
	if err := m.prefs.SetString(PrefServer, server); err != nil {
		return fmt.Errorf("save server: %w", err)
	}
	m.server = server
	if server == "" {
		m.status = StatusDisabled
	}
	return nil
}

// SavePort stores the broker port.
func (m *Manager) SavePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("save port: invalid port %d", port)
	}
	if err := m.prefs.SetInt(PrefPort, port); err != nil {
		return fmt.Errorf("save port: %w", err)
	}
	m.port = port
	return nil
}

// SaveUsername stores the broker user.
func (m *Manager) SaveUsername(user string) error {
	if err := m.prefs.SetString(PrefUser, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	m.user = user
	return nil
}

// SavePassword stores the broker password.
func (m *Manager) SavePassword(password string) error {
	if err := m.prefs.SetString(PrefPassword, password); err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	m.password = password
	return nil
}

// Info returns human-readable status lines.
func (m *Manager) Info() []string {
	return []string{
		"Server: " + m.server + ":" + strconv.Itoa(m.port),
		"User: " + m.user,
		"Client ID: " + m.opts.ClientID,
		"Status: " + m.status.String(),
		"Connected: " + strconv.FormatBool(m.client.IsConnected()),
		"Subscriptions: " + strconv.Itoa(len(m.subs)),
		"Pending: " + strconv.Itoa(len(m.pending)),
	}
}

func (m *Manager) handleEvent(e event.Event) {
	if e.IsCommand() {
		if !m.ProcessCommand(e.Command(), e.Params) {
			m.bus.Debug("Unknown mqtt command: "+e.Command(), 0)
		}
		return
	}
	switch e.Name {
	case EventSubscribe:
		m.AddSubscription(e.Param(0))
	case EventUnsubscribe:
		m.RemoveSubscription(e.Param(0))
	case EventPublish:
		m.Publish(e.Param(0), e.Param(1), false)
	case EventPublishBuffered:
		m.PublishBuffered(e.Param(0), e.Param(1))
	}
}

// ProcessCommand executes an mqtt console command. Returns false for unknown commands.
func (m *Manager) ProcessCommand(cmd string, params []string) bool {
	report := func(err error, ok string) {
		if err != nil {
			m.bus.Debug(err.Error(), 0)
			return
		}
		m.bus.Debug(ok, 1)
	}
	arg := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}

	switch cmd {
	case "server":
		report(m.SaveServer(arg(0)), "New MQTT server: "+arg(0))
	case "port":
		port, err := strconv.Atoi(arg(0))
		if err != nil {
			m.bus.Debug("Usage: mqtt:port <number>", 0)
			break
		}
		report(m.SavePort(port), "New MQTT port: "+arg(0))
	case "user":
		report(m.SaveUsername(arg(0)), "New MQTT user: "+arg(0))
	case "pass", "password":
		report(m.SavePassword(arg(0)), "New MQTT password saved")
	case "reconnect":
		m.client.Disconnect()
		m.Reconnect()
	case "publish":
		if len(params) < 2 {
			m.bus.Debug("Usage: mqtt:publish <topic> <payload>", 0)
			break
		}
		m.Publish(params[0], strings.Join(params[1:], " "), true)
	case "subscribe":
		m.AddSubscription(arg(0))
	case "unsubscribe":
		m.RemoveSubscription(arg(0))
	case "subs":
		for _, t := range m.Subscriptions() {
			m.bus.Debug("  "+t, 0)
		}
	case "status":
		m.bus.Debug("MQTT: "+m.status.String(), 0)
	case "info":
		for _, line := range m.Info() {
			m.bus.Debug(line, 0)
		}
	default:
		return false
	}
	return true
}
