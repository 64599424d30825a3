package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Hostname      string       `json:"hostname"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	TimeSynced    bool         `json:"time_synced"`
	DebugLevel    int          `json:"debug_level"`
	MQTT          MQTTJSON     `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Devices       []DeviceJSON `json:"devices"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTJSON reports messaging state.
type MQTTJSON struct {
	Status        string   `json:"status"`
	Connected     bool     `json:"connected"`
	Broker        string   `json:"broker"`
	ClientID      string   `json:"client_id"`
	Pending       int      `json:"pending"`
	Subscriptions []string `json:"subscriptions"`
}

// NetworkJSON is the JSON representation of connection state.
type NetworkJSON struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
}

// DeviceJSON is the JSON representation of one device.
type DeviceJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Topic string `json:"topic,omitempty"`
	State string `json:"state"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
	TelnetAddr  string `json:"telnet_addr,omitempty"`
	SerialPort  string `json:"serial_port,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	topics := snap.MQTT.Topics
	if topics == nil {
		topics = []string{}
	}
	devices := make([]DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		state := d.State
		if state == "" {
			state = "UNKNOWN"
		}
		devices = append(devices, DeviceJSON{ID: d.ID, Name: d.Name, Kind: d.Kind, Topic: d.Topic, State: state})
	}

	return StatusInner{
		Hostname:      snap.Config.Hostname,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		TimeSynced:    snap.TimeSynced,
		DebugLevel:    snap.DebugLevel,
		MQTT: MQTTJSON{
			Status:        snap.MQTT.Status,
			Connected:     snap.MQTT.Connected,
			Broker:        snap.MQTT.Broker,
			ClientID:      snap.MQTT.ClientID,
			Pending:       snap.MQTT.Pending,
			Subscriptions: topics,
		},
		Devices: devices,
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
			TelnetAddr:  snap.Config.TelnetAddr,
			SerialPort:  snap.Config.SerialPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			State:     snap.Network.State,
			Connected: snap.Network.Connected,
			SSID:      snap.Network.SSID,
			IP:        snap.Network.IP,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
