package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/nodekit/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.Hostname}}</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
#log { background: #111; color: #ddd; padding: 8px; height: 20em; overflow-y: auto; white-space: pre; }
form { display: flex; gap: 8px; }
form input[type=text] { flex: 1; font-family: monospace; }
</style>
</head>
<body>
<h1>{{.Config.Hostname}}</h1>

<h2>Devices</h2>
<table>
{{range .Devices}}<tr><th>{{.Name}} <small>({{.Kind}}{{if .Topic}}, {{.Topic}}{{end}})</small></th><td class="{{if eq .State "ON"}}on{{else if eq .State "OFF"}}off{{else}}unknown{{end}}">{{stateOrUnknown .State}}</td></tr>
{{else}}<tr><td>No devices</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
{{if .Network}}<tr><th>WiFi</th><td class="{{if .Network.Connected}}connected{{else}}disconnected{{end}}">{{.Network.State}}{{if .Network.SSID}} ({{.Network.SSID}}){{end}}</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .MQTT.Connected}}connected{{else}}{{.MQTT.Status}}{{end}}</td></tr>
<tr><th>Broker</th><td>{{.MQTT.Broker}}</td></tr>
<tr><th>Client ID</th><td>{{.MQTT.ClientID}}</td></tr>
<tr><th>Pending</th><td>{{.MQTT.Pending}}</td></tr>
<tr><th>Subscriptions</th><td>{{range $i, $t := .MQTT.Topics}}{{if $i}}, {{end}}{{$t}}{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Clock</th><td>{{if .TimeSynced}}synchronised{{else}}not set{{end}}</td></tr>
<tr><th>Debug level</th><td>{{.DebugLevel}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.TelnetAddr}}<tr><th>Telnet</th><td>{{.Config.TelnetAddr}}</td></tr>{{end}}
{{if .Config.SerialPort}}<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>{{end}}
</table>

<h2>Console</h2>
<form method="post" action="/command">
<input type="text" name="cmd" placeholder="sys:info" autofocus>
<input type="submit" value="Send">
</form>
<div id="log">{{range .Logs}}{{.}}
{{end}}</div>

<p><a href="/index.json">JSON</a> · <a href="/logs">Logs</a></p>
<script>
(function() {
  var log = document.getElementById("log");
  var seen = {{len .Logs}};
  log.scrollTop = log.scrollHeight;
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = function(ev) {
    if (seen > 0) { seen--; return; }
    log.textContent += ev.data + "\n";
    log.scrollTop = log.scrollHeight;
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, logs []string) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Logs   []string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Logs:     logs,
	}
	indexTmpl.Execute(w, data)
}
