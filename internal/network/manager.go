package network

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
)

// Category is the bus category for link events and commands.
const Category = "wifi"

// Event names published on Category.
const (
	EventConnecting       = "connecting"        // [attempt]
	EventConnected        = "connected"         // [ssid, ip]
	EventLost             = "lost"              // []
	EventRecovered        = "recovered"         // [ssid, ip]
	EventFailed           = "failed"            // [attempts]
	EventAPStarted        = "ap_started"        // [name, ip]
	EventDisconnected     = "disconnected"      // []
	EventWrongCredentials = "wrong_credentials" // [ssid]
)

// Preference keys.
const (
	PrefSSID     = "ssid"
	PrefPassword = "password"
)

// State is the connection state. Numeric values match the status codes
// reported by earlier firmware so dashboards keep working.
type State int

const (
	StateIdle             State = 0
	StateConnecting       State = 1
	StateConnectionFailed State = 2
	StateLost             State = 3
	StateDisconnected     State = 4
	StateAccessPoint      State = 5
	StateWrongCredentials State = 6
	StateConnected        State = 10
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Init WiFi"
	case StateConnecting:
		return "Connection in progress"
	case StateConnectionFailed:
		return "Initial connection failed"
	case StateLost:
		return "Connection lost"
	case StateDisconnected:
		return "Disconnection"
	case StateAccessPoint:
		return "Access Point"
	case StateWrongCredentials:
		return "Wrong credentials"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Options tunes the retry loop and the fallback access point.
type Options struct {
	// BaseDelay is multiplied by (retries+1) to get the wait between checks.
	BaseDelay time.Duration
	// MaxRetries is the number of failed checks before giving up (or
	// restarting the attempt when KeepConnected is set).
	MaxRetries int
	// KeepConnected retries forever instead of falling back to the AP.
	// It is also set by the first successful connection.
	KeepConnected bool

	APName     string
	APPassword string
	APIP       net.IP
}

// DefaultOptions returns the stock retry schedule.
func DefaultOptions() Options {
	return Options{
		BaseDelay:  100 * time.Millisecond,
		MaxRetries: 10,
		APName:     "nodekit",
		APIP:       net.IPv4(192, 168, 1, 249),
	}
}

// Manager owns the connection state. All methods must be called from the
// driving loop.
type Manager struct {
	bus       *event.Bus
	prefs     *prefs.Preferences
	transport Transport
	clock     schedule.Clock
	opts      Options

	ssid     string
	password string

	state         State
	retries       int
	lastCheck     time.Time
	keepConnected bool
}

// NewManager creates a Manager and registers its command handler on bus.
func NewManager(bus *event.Bus, p *prefs.Preferences, transport Transport, clock schedule.Clock, opts Options) *Manager {
	def := DefaultOptions()
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.APName == "" {
		opts.APName = def.APName
	}
	if opts.APIP == nil {
		opts.APIP = def.APIP
	}
	if clock == nil {
		clock = schedule.SystemClock{}
	}

	m := &Manager{
		bus:           bus,
		prefs:         p,
		transport:     transport,
		clock:         clock,
		opts:          opts,
		keepConnected: opts.KeepConnected,
	}
	if bus != nil {
		bus.Register(Category, m.handleEvent)
	}
	return m
}

// Init loads stored credentials and optionally starts connecting.
func (m *Manager) Init(autoConnect bool) {
	m.ssid = m.prefs.GetString(PrefSSID, m.ssid)
	m.password = m.prefs.GetString(PrefPassword, m.password)
	if autoConnect {
		m.AutoConnect()
	}
}

// SetDefaultCredentials seeds credentials used when none are stored.
func (m *Manager) SetDefaultCredentials(ssid, password string) {
	m.ssid = ssid
	m.password = password
}

// State returns the current connection state.
func (m *Manager) State() State { return m.state }

// IsConnected reports whether the link is usable.
func (m *Manager) IsConnected() bool { return m.state == StateConnected }

// SSID returns the configured network name.
func (m *Manager) SSID() string { return m.ssid }

// LocalIP returns the current address from the transport.
func (m *Manager) LocalIP() string { return m.transport.LocalIP() }

// Loop advances the state machine. Checks are spaced (retries+1)*BaseDelay
// apart so a struggling association is polled less and less often.
func (m *Manager) Loop() {
	if m.state == StateIdle {
		if m.ssid != "" {
			m.Connect()
		}
		return
	}

	now := m.clock.Now()
	wait := time.Duration(m.retries+1) * m.opts.BaseDelay
	if now.Sub(m.lastCheck) < wait {
		return
	}
	m.lastCheck = now

	switch m.state {
	case StateConnecting:
		m.checkConnecting()
	case StateConnected:
		if !m.transport.IsConnected() {
			m.state = StateLost
			m.bus.Debug("Connection lost", 1)
			m.bus.Publish(Category, EventLost)
		}
	case StateLost:
		if m.transport.IsConnected() {
			m.state = StateConnected
			m.bus.Publish(Category, EventRecovered, m.transport.SSID(), m.transport.LocalIP())
		}
	}
}

func (m *Manager) checkConnecting() {
	if m.transport.IsConnected() {
		m.setConnected()
		return
	}
	if m.transport.Status() == LinkWrongPassword {
		if !m.keepConnected {
			m.retries = 0
			m.state = StateWrongCredentials
			m.bus.Debug("Wrong credentials for "+m.ssid, 0)
			m.bus.Publish(Category, EventWrongCredentials, m.ssid)
			m.StartAccessPoint(false)
			return
		}
		// Keep-connected nodes count it as a failed attempt and retry
		// forever; reported once per retry cycle.
		if m.retries == 0 {
			m.bus.Debug("Wrong credentials for "+m.ssid+", retrying", 0)
			m.bus.Publish(Category, EventWrongCredentials, m.ssid)
		}
	}

	m.retries++
	m.bus.Publish(Category, EventConnecting, strconv.Itoa(m.retries))
	if m.retries < m.opts.MaxRetries {
		return
	}

	attempts := m.retries
	m.retries = 0
	if m.keepConnected {
		m.bus.Debug("Connection failed, retrying", 1)
		if err := m.transport.BeginStation(m.ssid, m.password); err != nil {
			m.bus.Debug("Station restart failed: "+err.Error(), 1)
		}
		return
	}
	m.state = StateConnectionFailed
	m.bus.Debug("Connection failed", 0)
	m.bus.Publish(Category, EventFailed, strconv.Itoa(attempts))
	m.StartAccessPoint(false)
}

func (m *Manager) setConnected() {
	m.state = StateConnected
	m.retries = 0
	m.keepConnected = true
	m.bus.Publish(Category, EventConnected, m.transport.SSID(), m.transport.LocalIP())
}

// Connect starts joining the stored network. It returns true only if the
// link came up immediately; otherwise Loop keeps polling.
func (m *Manager) Connect() bool {
	if m.ssid == "" {
		m.bus.Debug("No SSID configured", 0)
		return false
	}
	m.state = StateConnecting
	m.retries = 0
	m.lastCheck = m.clock.Now()
	m.bus.Debug("Connecting to: "+m.ssid, 1)

	if err := m.transport.BeginStation(m.ssid, m.password); err != nil {
		m.bus.Debug("Connect error: "+err.Error(), 1)
	}
	if m.transport.IsConnected() {
		m.setConnected()
		return true
	}
	return false
}

// AutoConnect connects with stored credentials, or starts the access point
// when there are none. It never attempts a blind connect.
func (m *Manager) AutoConnect() bool {
	if m.transport.IsConnected() {
		if m.state != StateConnected {
			m.setConnected()
		}
		return true
	}
	if m.ssid == "" {
		m.bus.Debug("No SSID, starting access point", 0)
		m.StartAccessPoint(false)
		return false
	}
	return m.Connect()
}

// Disconnect drops the link and stops retrying.
func (m *Manager) Disconnect() {
	if err := m.transport.Disconnect(); err != nil {
		m.bus.Debug("Disconnect error: "+err.Error(), 1)
	}
	m.state = StateDisconnected
	m.retries = 0
	m.bus.Publish(Category, EventDisconnected)
}

// StartAccessPoint hosts the fallback network. Re-entering while already in
// AP mode does nothing unless force is set.
func (m *Manager) StartAccessPoint(force bool) {
	if m.state == StateAccessPoint && !force {
		return
	}
	ip := m.opts.APIP.String()
	m.bus.Debug("Creating hotspot: "+m.opts.APName+" ("+ip+")", 0)
	if err := m.transport.BeginAccessPoint(m.opts.APName, m.opts.APPassword, m.opts.APIP); err != nil {
		m.bus.Debug("Access point error: "+err.Error(), 0)
		return
	}
	m.state = StateAccessPoint
	m.retries = 0
	m.bus.Publish(Category, EventAPStarted, m.opts.APName, ip)
}

// ToggleKeepConnection flips the keep-connected flag and returns the new value.
func (m *Manager) ToggleKeepConnection() bool {
	m.keepConnected = !m.keepConnected
	return m.keepConnected
}

// SaveSSID stores a new network name.
func (m *Manager) SaveSSID(ssid string) error {
	if err := m.prefs.SetString(PrefSSID, ssid); err != nil {
		return fmt.Errorf("save ssid: %w", err)
	}
	m.ssid = ssid
	return nil
}

// SavePassword stores a new network password.
func (m *Manager) SavePassword(password string) error {
	if err := m.prefs.SetString(PrefPassword, password); err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	m.password = password
	return nil
}

// Info returns human-readable status lines.
func (m *Manager) Info() []string {
	lines := []string{
		"Status: " + m.state.String(),
		"SSID: " + m.ssid,
	}
	if m.IsConnected() {
		lines = append(lines, "IP address: "+m.transport.LocalIP())
	}
	lines = append(lines, "Keep connected: "+strconv.FormatBool(m.keepConnected))
	return lines
}

func (m *Manager) handleEvent(e event.Event) {
	if !e.IsCommand() {
		return
	}
	if !m.ProcessCommand(e.Command(), e.Params) {
		m.bus.Debug("Unknown wifi command: "+e.Command(), 0)
	}
}

// ProcessCommand executes a wifi console command. Returns false for unknown commands.
func (m *Manager) ProcessCommand(cmd string, params []string) bool {
	switch cmd {
	case "connect":
		m.Connect()
	case "disconnect":
		m.Disconnect()
	case "ap", "hotspot":
		m.StartAccessPoint(len(params) > 0 && params[0] == "force")
	case "auto":
		m.AutoConnect()
	case "ssid":
		if len(params) == 0 {
			m.bus.Debug("SSID: "+m.ssid, 0)
			break
		}
		if err := m.SaveSSID(params[0]); err != nil {
			m.bus.Debug(err.Error(), 0)
			break
		}
		m.bus.Debug("New WiFi SSID: "+params[0], 1)
	case "password", "pass":
		if len(params) == 0 {
			m.bus.Debug("Usage: wifi:password <password>", 0)
			break
		}
		if err := m.SavePassword(params[0]); err != nil {
			m.bus.Debug(err.Error(), 0)
			break
		}
		m.bus.Debug("New WiFi password saved", 1)
	case "keep":
		m.bus.Debug("Keep connected: "+strconv.FormatBool(m.ToggleKeepConnection()), 0)
	case "status":
		m.bus.Debug("WiFi: "+m.state.String(), 0)
	case "info":
		for _, line := range m.Info() {
			m.bus.Debug(line, 0)
		}
	default:
		return false
	}
	return true
}
