// Package mqtt manages the broker connection, subscription intent and the
// offline publication buffer, and formats the node's JSON payloads.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"
)

// MaxPayload bounds inbound payloads before they are published on the bus.
const MaxPayload = 1024

// ErrNotConnected is returned by clients asked to publish while offline.
var ErrNotConnected = errors.New("mqtt: not connected")

// Message is one inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the broker transport. Connect blocks for a bounded time.
// Inbound messages are queued by the client and handed to the caller only
// from Poll, so delivery happens on the caller's goroutine.
type Client interface {
	Connect(broker, clientID, user, password string) error
	IsConnected() bool
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Poll(fn func(Message))
	Disconnect()
}

// LogTopic returns the topic debug records are published on.
func LogTopic(hostname string) string { return hostname + "/log" }

// SystemTopic returns the topic lifecycle events and status snapshots are published on.
func SystemTopic(hostname string) string { return hostname + "/system" }

// LogRecord is the JSON form of one debug line.
type LogRecord struct {
	Time    string `json:"time,omitempty"`
	Level   int    `json:"level"`
	Message string `json:"message"`
}

// FormatLogRecord creates the JSON payload for a debug line. An empty
// timestamp is omitted.
func FormatLogRecord(timestamp string, level int, message string) ([]byte, error) {
	return json.Marshal(LogRecord{Time: timestamp, Level: level, Message: message})
}

// SystemEvent represents a lifecycle event (startup, shutdown, heartbeat, offline).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g. "SIGTERM", "REBOOT"
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// SystemPayload is the JSON envelope for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// truncatePayload bounds an inbound payload to MaxPayload bytes without
// splitting a UTF-8 sequence.
func truncatePayload(b []byte) string {
	if len(b) > MaxPayload {
		n := MaxPayload
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	return string(b)
}
