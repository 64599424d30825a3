package app

import (
	"github.com/sweeney/nodekit/internal/logic"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/status"
)

// refreshStatus copies component state into the tracker for HTTP readers.
func (c *Controller) refreshStatus() {
	c.tracker.SetNetwork(&status.NetworkInfo{
		State:     c.network.State().String(),
		Connected: c.network.IsConnected(),
		SSID:      c.network.SSID(),
		IP:        c.network.LocalIP(),
	})
	c.tracker.SetMQTT(status.MQTTInfo{
		Status:    c.mqtt.Status().String(),
		Connected: c.mqtt.IsConnected(),
		Broker:    c.mqtt.Broker(),
		ClientID:  c.mqtt.ClientID(),
		Pending:   c.mqtt.Pending(),
		Topics:    c.mqtt.Subscriptions(),
	})

	devices := make([]status.DeviceInfo, 0, c.devices.Len())
	for _, d := range c.devices.All() {
		info := status.DeviceInfo{ID: d.ID(), Name: d.Name(), Kind: d.Kind(), Topic: d.Topic()}
		if s, ok := d.(interface{ State() logic.State }); ok {
			info.State = string(s.State())
		}
		devices = append(devices, info)
	}
	c.tracker.SetDevices(devices)
	c.tracker.SetClock(c.wall.Synced(), c.debugLevel)
}

// publishStatus publishes a retained status snapshot on the system topic.
// It is dropped while the broker is unreachable.
func (c *Controller) publishStatus(event, reason string) bool {
	c.refreshStatus()
	snap := c.tracker.Snapshot()
	payload, _ := mqtt.FormatSystemPayload(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	ok := c.mqtt.PublishRetained(mqtt.SystemTopic(c.hostname), string(payload))
	if ok {
		c.bus.Debug("Published "+event+" status", 2)
	}
	return ok
}
