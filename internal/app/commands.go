package app

import (
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sweeney/nodekit/internal/schedule"
)

var sysCommands = []string{"info", "date", "time", "reboot", "restart", "debuglevel", "hostname", "device", "sleep", "prefs", "help"}

// processCommand executes a sys: command.
func (c *Controller) processCommand(cmd string, params []string) {
	// "sys:3" is shorthand for "sys:debuglevel 3".
	if len(cmd) == 1 && unicode.IsDigit(rune(cmd[0])) {
		params = append([]string{cmd}, params...)
		cmd = "debuglevel"
	}

	switch cmd {
	case "info":
		c.debugLines(c.info())
	case "date":
		c.bus.Debug(c.formatTime(schedule.DateLayout), 0)
	case "time":
		c.bus.Debug(c.formatTime(schedule.TimeLayout), 0)
	case "reboot", "restart":
		c.bus.Debug("Restarting...", 1)
		c.sched.SetTimeout(func() { c.restart = true }, c.cfg.RestartDelay)
	case "debuglevel":
		if len(params) == 0 {
			c.bus.Debug("Debug level: "+strconv.Itoa(c.debugLevel), 0)
			return
		}
		level, err := strconv.Atoi(params[0])
		if err != nil || level < 0 {
			c.bus.Debug("Usage: sys:debuglevel <0-9>", 0)
			return
		}
		if err := c.prefs.SetInt(PrefDebugLevel, level); err != nil {
			c.bus.Debug("Save debug level: "+err.Error(), 0)
			return
		}
		c.debugLevel = level
		c.bus.Debug("Debug level set to: "+params[0], 1)
	case "hostname":
		if len(params) == 0 {
			c.bus.Debug("Hostname: "+c.hostname, 0)
			return
		}
		if err := c.prefs.SetString(PrefHostname, params[0]); err != nil {
			c.bus.Debug("Save hostname: "+err.Error(), 0)
			return
		}
		c.hostname = params[0]
		c.tracker.SetHostname(c.hostname)
		c.bus.Debug("Hostname set to: "+params[0], 1)
	case "device":
		c.deviceCommand(params)
	case "sleep":
		if len(params) == 0 {
			c.bus.Debug("Sleep: "+strconv.Itoa(int(c.idleDelay/time.Millisecond))+" ms", 0)
			return
		}
		ms, err := strconv.Atoi(params[0])
		if err != nil || ms < 0 {
			c.bus.Debug("Usage: sys:sleep <ms>", 0)
			return
		}
		if err := c.prefs.SetInt(PrefSleep, ms); err != nil {
			c.bus.Debug("Save sleep: "+err.Error(), 0)
			return
		}
		c.idleDelay = time.Duration(ms) * time.Millisecond
		c.bus.Debug("Sleep set to: "+params[0]+" ms", 1)
	case "prefs":
		c.dumpPrefs()
	case "help":
		c.bus.Debug("sys commands: "+strings.Join(sysCommands, ", "), 0)
		c.bus.Debug("Namespaces: sys, wifi, mqtt, display, <device id>", 0)
	default:
		c.bus.Debug("Unknown command: "+cmd, 0)
	}
}

func (c *Controller) deviceCommand(params []string) {
	if len(params) == 0 {
		c.bus.Debug("List of devices:", 1)
		for _, d := range c.devices.All() {
			c.bus.Debug(" #"+d.ID()+" : "+d.Name()+" ("+d.Topic()+")", 0)
		}
		return
	}
	d := c.devices.ByID(params[0])
	if d == nil {
		c.bus.Debug("Device not found: "+params[0], 0)
		return
	}
	c.debugLines(d.Info())
}

func (c *Controller) dumpPrefs() {
	pairs, err := c.prefs.Dump()
	if err != nil {
		c.bus.Debug("Read preferences: "+err.Error(), 0)
		return
	}
	for _, kv := range pairs {
		value := kv[1]
		if strings.Contains(kv[0], "pass") {
			value = "********"
		}
		c.bus.Debug(kv[0]+" = "+value, 0)
	}
}

func (c *Controller) processDisplayCommand(cmd string, params []string) {
	if c.display == nil {
		c.bus.Debug("No display", 0)
		return
	}
	switch cmd {
	case "clear":
		c.display.Clear()
	case "print":
		if len(params) < 1 {
			c.bus.Debug("Usage: display:print <row> <text>", 0)
			return
		}
		row, err := strconv.Atoi(params[0])
		if err != nil {
			c.bus.Debug("Usage: display:print <row> <text>", 0)
			return
		}
		c.display.PrintLine(row, strings.Join(params[1:], " "))
	case "show":
		for _, line := range c.display.Lines() {
			c.bus.DebugNoTime("|"+line+"|", 0)
		}
	default:
		c.bus.Debug("Unknown display command: "+cmd, 0)
	}
}

func (c *Controller) info() []string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lines := []string{
		"Hostname: " + c.hostname,
		"Uptime: " + c.clock.Now().Sub(c.tracker.Snapshot().StartTime).Truncate(time.Second).String(),
		"Platform: " + runtime.GOOS + "/" + runtime.GOARCH + " " + runtime.Version(),
		"CPUs: " + strconv.Itoa(runtime.NumCPU()) + ", goroutines: " + strconv.Itoa(runtime.NumGoroutine()),
		"Heap: " + strconv.FormatUint(mem.HeapAlloc/1024, 10) + " KB",
		"Debug level: " + strconv.Itoa(c.debugLevel),
		"Time: " + c.formatTime(schedule.DateTimeLayout),
	}
	if c.network.IsConnected() {
		lines = append(lines,
			"Connected to WiFi: "+c.network.SSID(),
			"IP address: "+c.network.LocalIP(),
		)
	} else {
		lines = append(lines, "Not connected to WiFi")
	}
	lines = append(lines,
		"MQTT: "+c.mqtt.Status().String(),
		"Devices: "+strconv.Itoa(c.devices.Len()),
		"Timers: "+strconv.Itoa(c.sched.Pending()),
	)
	return lines
}

func (c *Controller) formatTime(layout string) string {
	if s := schedule.FormatTime(c.wall, layout); s != "" {
		return s
	}
	return "Time not set"
}

func (c *Controller) debugLines(lines []string) {
	for _, line := range lines {
		c.bus.Debug(line, 0)
	}
}

