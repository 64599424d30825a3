// Package status provides a thread-safe status tracker for the node.
// The controller writes it once per loop; HTTP handlers and the heartbeat
// read snapshots.
package status

import (
	"slices"
	"sync"
	"time"
)

// NetworkInfo contains connection state. This is a local copy to avoid
// importing internal/network from status.
type NetworkInfo struct {
	State     string
	Connected bool
	SSID      string
	IP        string
}

// MQTTInfo contains messaging state.
type MQTTInfo struct {
	Status    string
	Connected bool
	Broker    string
	ClientID  string
	Pending   int
	Topics    []string
}

// DeviceInfo describes one attached device.
type DeviceInfo struct {
	ID    string
	Name  string
	Kind  string
	Topic string
	State string
}

// Config contains static node configuration for display.
type Config struct {
	Hostname    string
	HeartbeatMs int64
	HTTPAddr    string
	TelnetAddr  string
	SerialPort  string
}

// Snapshot is a point-in-time view of node state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime  time.Time
	Now        time.Time
	TimeSynced bool
	DebugLevel int
	Network    *NetworkInfo
	MQTT       MQTTInfo
	Devices    []DeviceInfo
	Config     Config
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetNetwork sets the connection info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetMQTT sets the messaging info.
func (t *Tracker) SetMQTT(info MQTTInfo) {
	info.Topics = slices.Clone(info.Topics)
	t.mu.Lock()
	t.snap.MQTT = info
	t.mu.Unlock()
}

// SetDevices replaces the device list.
func (t *Tracker) SetDevices(devices []DeviceInfo) {
	devices = slices.Clone(devices)
	t.mu.Lock()
	t.snap.Devices = devices
	t.mu.Unlock()
}

// SetClock records whether wall time has been synchronised and the active
// debug level.
func (t *Tracker) SetClock(synced bool, debugLevel int) {
	t.mu.Lock()
	t.snap.TimeSynced = synced
	t.snap.DebugLevel = debugLevel
	t.mu.Unlock()
}

// SetHostname updates the reported hostname after a rename.
func (t *Tracker) SetHostname(name string) {
	t.mu.Lock()
	t.snap.Config.Hostname = name
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
