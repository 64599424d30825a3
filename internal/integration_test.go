package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/nodekit/internal/app"
	"github.com/sweeney/nodekit/internal/device"
	"github.com/sweeney/nodekit/internal/gpio"
	"github.com/sweeney/nodekit/internal/logic"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/network"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
	"github.com/sweeney/nodekit/internal/status"
	"github.com/sweeney/nodekit/internal/web"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// node is a controller wired to fakes and a live HTTP console.
type node struct {
	ctrl   *app.Controller
	clock  *schedule.FakeClock
	client *mqtt.FakeClient
	ts     *httptest.Server
	lamp   *gpio.FakeLine
	door   *gpio.FakeLine
}

func newNode(t *testing.T, doorSamples ...bool) *node {
	t.Helper()
	n := &node{
		clock:  schedule.NewFakeClock(startTime),
		client: mqtt.NewFakeClient(),
		lamp:   gpio.NewFakeLine(),
		door:   gpio.NewFakeLine(doorSamples...),
	}
	if len(doorSamples) == 0 {
		n.door.Samples = []bool{false}
	}

	p := prefs.New(prefs.NewMemoryStore())
	p.SetString(network.PrefSSID, "HomeNet")
	p.SetString(mqtt.PrefServer, "broker.local")
	transport := network.NewFakeTransport()
	transport.ConnectOnBegin = true

	tracker := status.NewTracker(startTime, status.Config{Hostname: "node1", HeartbeatMs: 900000, HTTPAddr: ":80"})
	logs := web.NewLogRing(web.DefaultLogLines)
	srv := web.New(":0", tracker, logs)
	n.ts = httptest.NewServer(srv.Routes())
	t.Cleanup(n.ts.Close)

	n.ctrl = app.New(app.Config{
		Hostname:    "node1",
		AutoConnect: true,
		Prefs:       p,
		Clock:       n.clock,
		Location:    time.UTC,
		Transport:   transport,
		MQTTClient:  n.client,
		MQTT:        mqtt.Options{ClientID: "node1-test"},
		Tracker:     tracker,
		Logs:        logs,
		WebCommands: srv.Commands(),
	})
	bus := n.ctrl.Bus()
	if err := n.ctrl.AddDevice(device.NewRelay(bus, p, "lamp", "Porch lamp", "home/lamp", n.lamp)); err != nil {
		t.Fatal(err)
	}
	door := device.NewSwitch(bus, p, "door", "Front door", "home/door", n.door, logic.NewDebouncer(50*time.Millisecond), n.clock)
	if err := n.ctrl.AddDevice(door); err != nil {
		t.Fatal(err)
	}
	return n
}

// tick runs one iteration then advances the clock by 10ms.
func (n *node) tick() {
	n.ctrl.Loop()
	n.clock.Advance(10 * time.Millisecond)
}

func (n *node) published(topic string) []string {
	var out []string
	for _, p := range n.client.Published {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (n *node) getStatus(t *testing.T) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(n.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	var s status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return s
}

// TestIntegrationSwitchToBroker follows an input from the GPIO line through
// the debouncer and the bus to the broker and the HTTP status page.
func TestIntegrationSwitchToBroker(t *testing.T) {
	var samples []bool
	// baseline OFF
	for i := 0; i < 10; i++ {
		samples = append(samples, false)
	}
	// 10ms bounce, rejected
	samples = append(samples, true, false)
	for i := 0; i < 5; i++ {
		samples = append(samples, false)
	}
	// held ON
	for i := 0; i < 10; i++ {
		samples = append(samples, true)
	}

	n := newNode(t, samples...)
	n.ctrl.Init()
	for range samples {
		n.tick()
	}

	got := n.published("home/door/state")
	if !slices.Equal(got, []string{"ON"}) {
		t.Fatalf("home/door/state: got %v, want [ON]", got)
	}

	n.clock.Advance(time.Second)
	n.ctrl.Loop()

	s := n.getStatus(t)
	var door *status.DeviceJSON
	for i := range s.Status.Devices {
		if s.Status.Devices[i].ID == "door" {
			door = &s.Status.Devices[i]
		}
	}
	if door == nil {
		t.Fatalf("door missing from status: %+v", s.Status.Devices)
	}
	if door.State != "ON" || door.Kind != "switch" {
		t.Errorf("door: got %+v", door)
	}
	if !s.Status.MQTT.Connected {
		t.Error("status should report the broker connected")
	}
	if !slices.Contains(s.Status.MQTT.Subscriptions, "home/lamp") {
		t.Errorf("subscriptions: got %v", s.Status.MQTT.Subscriptions)
	}
}

// TestIntegrationWebCommandDrivesRelay submits a command over HTTP and
// checks the line, the broker and the log.
func TestIntegrationWebCommandDrivesRelay(t *testing.T) {
	n := newNode(t)
	n.ctrl.Init()
	n.tick()

	resp, err := http.Post(n.ts.URL+"/command", "text/plain", strings.NewReader("lamp:on"))
	if err != nil {
		t.Fatalf("POST /command: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	n.tick()

	if !n.lamp.Level() {
		t.Error("lamp line should be driven on")
	}
	got := n.published("home/lamp/state")
	if len(got) == 0 || got[len(got)-1] != "ON" {
		t.Errorf("home/lamp/state: got %v, want last ON", got)
	}

	// A broker message drives it back off.
	n.client.Deliver("home/lamp", "OFF")
	n.tick()
	if n.lamp.Level() {
		t.Error("lamp line should be off after broker command")
	}
}

// TestIntegrationOfflineBuffering toggles a relay while the broker is down
// and expects only the latest state once it comes back.
func TestIntegrationOfflineBuffering(t *testing.T) {
	n := newNode(t)
	n.client.ConnectError = errors.New("connection refused")
	n.ctrl.Init()
	n.tick()

	con := n.ctrl.Console()
	con.Submit("test", "lamp:toggle")
	con.Submit("test", "lamp:toggle")
	con.Submit("test", "lamp:on")
	n.tick()

	if got := n.ctrl.MQTT().Pending(); got != 1 {
		t.Fatalf("pending: got %d, want 1", got)
	}
	if len(n.client.Published) != 0 {
		t.Fatalf("nothing should reach the broker yet, got %+v", n.client.Published)
	}

	n.client.ConnectError = nil
	n.clock.Advance(time.Second)
	n.tick()

	got := n.published("home/lamp/state")
	if !slices.Equal(got, []string{"ON"}) {
		t.Errorf("home/lamp/state: got %v, want [ON]", got)
	}
	if n.ctrl.MQTT().Pending() != 0 {
		t.Error("pending should be empty after flush")
	}
}

// TestIntegrationStartupThenShutdown checks the retained lifecycle
// payloads on the system topic.
func TestIntegrationStartupThenShutdown(t *testing.T) {
	n := newNode(t)
	n.ctrl.Init()
	n.tick()

	if err := n.ctrl.Shutdown("SIGTERM"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	var system []mqtt.Published
	for _, p := range n.client.Published {
		if p.Topic == "node1/system" {
			system = append(system, p)
		}
	}
	if len(system) != 2 {
		t.Fatalf("expected STARTUP and SHUTDOWN, got %d system messages", len(system))
	}

	for i, want := range []struct{ event, reason string }{{"STARTUP", ""}, {"SHUTDOWN", "SIGTERM"}} {
		if !system[i].Retained {
			t.Errorf("%s should be retained", want.event)
		}
		var s status.StatusJSON
		if err := json.Unmarshal([]byte(system[i].Payload), &s); err != nil {
			t.Fatalf("%s: invalid JSON: %v", want.event, err)
		}
		if s.Status.Event != want.event || s.Status.Reason != want.reason {
			t.Errorf("got event %q reason %q, want %q %q", s.Status.Event, s.Status.Reason, want.event, want.reason)
		}
		if s.Status.Hostname != "node1" {
			t.Errorf("%s hostname: got %q", want.event, s.Status.Hostname)
		}
		if len(s.Status.Devices) != 2 {
			t.Errorf("%s devices: got %d, want 2", want.event, len(s.Status.Devices))
		}
		if s.Status.Network == nil || s.Status.Network.IP != "10.0.0.42" {
			t.Errorf("%s network: got %+v", want.event, s.Status.Network)
		}
	}

	if !n.lamp.Closed || !n.door.Closed {
		t.Error("GPIO lines should be released on shutdown")
	}
	if n.client.Disconnects != 1 {
		t.Errorf("Disconnects: got %d, want 1", n.client.Disconnects)
	}
}

// TestIntegrationLogsReachWeb checks that console debug lines are served
// over HTTP.
func TestIntegrationLogsReachWeb(t *testing.T) {
	n := newNode(t)
	n.ctrl.Init()
	n.ctrl.Console().Submit("test", "sys:hostname")
	n.tick()

	resp, err := http.Get(n.ts.URL + "/logs")
	if err != nil {
		t.Fatalf("GET /logs: %v", err)
	}
	defer resp.Body.Close()
	var logs web.LogsJSON
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	for _, want := range []string{"> Welcome on node1", "> Hostname: node1"} {
		if !slices.Contains(logs.Lines, want) {
			t.Errorf("logs missing %q: %v", want, logs.Lines)
		}
	}
}
