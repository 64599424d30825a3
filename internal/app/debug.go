package app

import (
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/schedule"
)

// debugSink renders a debug line and fans it out to the console, the web
// log, the display and the broker log topic. Lines above the configured
// level are dropped.
func (c *Controller) debugSink(message string, level int, showTime bool) {
	if level > c.debugLevel {
		return
	}
	// Sinks must not feed back into the debug channel.
	if c.inDebug {
		return
	}
	c.inDebug = true
	defer func() { c.inDebug = false }()

	var stamp string
	if level > 0 && showTime {
		stamp = schedule.FormatTime(c.wall, schedule.TimeLayout)
	}
	line := stamp + "> " + message

	c.console.Println(line)
	c.logs.Add(line)
	if level == 0 {
		c.printLine(1, message)
	}
	if c.mqtt.IsConnected() {
		if payload, err := mqtt.FormatLogRecord(stamp, level, message); err == nil {
			c.mqtt.Publish(mqtt.LogTopic(c.hostname), string(payload), false)
		}
	}
}

// toggleIdle suspends or resumes the power-saving delay.
func (c *Controller) toggleIdle() {
	c.suspended = !c.suspended
	if c.suspended {
		c.bus.Debug("Power saving suspended", 1)
	} else {
		c.bus.Debug("Power saving resumed", 1)
	}
}
