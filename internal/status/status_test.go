package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Hostname: "node1", HeartbeatMs: 60000, HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.Hostname != "node1" {
		t.Errorf("Config.Hostname: got %q, want node1", snap.Config.Hostname)
	}
	if snap.Network != nil {
		t.Error("expected nil Network initially")
	}
	if snap.MQTT.Connected {
		t.Error("expected MQTT.Connected=false initially")
	}
	if snap.TimeSynced {
		t.Error("expected TimeSynced=false initially")
	}
}

func TestSettersAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetNetwork(&NetworkInfo{State: "Connected", Connected: true, SSID: "MyNet", IP: "192.168.1.42"})
	tr.SetMQTT(MQTTInfo{Status: "KeepConnected", Connected: true, Pending: 2, Topics: []string{"home/lamp"}})
	tr.SetDevices([]DeviceInfo{{ID: "lamp", Kind: "relay", State: "ON"}})
	tr.SetClock(true, 2)
	tr.SetHostname("porch")

	snap := tr.Snapshot()
	if snap.Network == nil || snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", snap.Network)
	}
	if !snap.MQTT.Connected || snap.MQTT.Pending != 2 || len(snap.MQTT.Topics) != 1 {
		t.Errorf("MQTT: got %+v", snap.MQTT)
	}
	if len(snap.Devices) != 1 || snap.Devices[0].State != "ON" {
		t.Errorf("Devices: got %+v", snap.Devices)
	}
	if !snap.TimeSynced || snap.DebugLevel != 2 {
		t.Errorf("clock: synced %v level %d", snap.TimeSynced, snap.DebugLevel)
	}
	if snap.Config.Hostname != "porch" {
		t.Errorf("Hostname: got %q", snap.Config.Hostname)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	devices := []DeviceInfo{{ID: "lamp", State: "ON"}}
	tr.SetDevices(devices)

	snap1 := tr.Snapshot()
	devices[0].State = "OFF"
	tr.SetDevices([]DeviceInfo{{ID: "lamp", State: "OFF"}})

	if snap1.Devices[0].State != "ON" {
		t.Error("snapshot should be a copy; device state was modified")
	}
}

func newSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		StartTime:  start,
		Now:        start.Add(15 * time.Minute),
		TimeSynced: true,
		DebugLevel: 1,
		MQTT: MQTTInfo{
			Status:    "KeepConnected",
			Connected: true,
			Broker:    "tcp://localhost:1883",
			ClientID:  "nodekit-1234",
			Topics:    []string{"home/door", "home/lamp"},
		},
		Devices: []DeviceInfo{
			{ID: "lamp", Name: "Lamp", Kind: "relay", Topic: "home/lamp", State: "ON"},
			{ID: "door", Name: "door", Kind: "switch", Topic: "home/door"},
		},
		Config: Config{Hostname: "node1", HeartbeatMs: 900000, HTTPAddr: ":80"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(newSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Hostname != "node1" {
		t.Errorf("Hostname: got %q, want node1", parsed.Status.Hostname)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected || parsed.Status.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", parsed.Status.MQTT)
	}
	if len(parsed.Status.MQTT.Subscriptions) != 2 {
		t.Errorf("Subscriptions: got %v", parsed.Status.MQTT.Subscriptions)
	}
	if len(parsed.Status.Devices) != 2 {
		t.Fatalf("Devices: got %d, want 2", len(parsed.Status.Devices))
	}
	if parsed.Status.Devices[0].State != "ON" {
		t.Errorf("Devices[0].State: got %q, want ON", parsed.Status.Devices[0].State)
	}
	if parsed.Status.Devices[1].State != "UNKNOWN" {
		t.Errorf("Devices[1].State: got %q, want UNKNOWN", parsed.Status.Devices[1].State)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.Network != nil {
		t.Error("expected Network omitted")
	}
}

func TestFormatJSONEmptyLists(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatJSON(snap), &raw)
	status := raw["status"].(map[string]interface{})

	if _, ok := status["devices"].([]interface{}); !ok {
		t.Errorf("devices should be an empty array, got %v", status["devices"])
	}
	mq := status["mqtt"].(map[string]interface{})
	if _, ok := mq["subscriptions"].([]interface{}); !ok {
		t.Errorf("subscriptions should be an empty array, got %v", mq["subscriptions"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(newSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}

	data = FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")
	var parsed StatusJSON
	json.Unmarshal(data, &parsed)
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := newSnapshot()
	snap.Network = &NetworkInfo{State: "Connected", Connected: true, IP: "192.168.1.42", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetMQTT(MQTTInfo{Connected: i%2 == 0, Pending: i})
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
			tr.SetDevices([]DeviceInfo{{ID: "lamp"}})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
