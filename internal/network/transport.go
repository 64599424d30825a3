// Package network implements the link connection state machine and the
// transports it drives.
package network

import (
	"errors"
	"net"
)

// LinkStatus is the raw status reported by a transport.
type LinkStatus int

const (
	LinkIdle LinkStatus = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkNoNetwork
	LinkWrongPassword
	LinkFailed
)

func (s LinkStatus) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkNoNetwork:
		return "no network"
	case LinkWrongPassword:
		return "wrong password"
	case LinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotSupported is returned by transports for operations they cannot perform.
var ErrNotSupported = errors.New("network: operation not supported by transport")

// Transport is the physical link. Calls must return quickly: association
// may continue in the background, and the state machine polls IsConnected
// and Status until it settles.
type Transport interface {
	// BeginStation starts joining ssid.
	BeginStation(ssid, password string) error
	// BeginAccessPoint hosts a local network for out-of-band configuration.
	BeginAccessPoint(name, password string, ip net.IP) error
	// Disconnect drops the station link.
	Disconnect() error
	// IsConnected reports whether the station link is up.
	IsConnected() bool
	// Status returns the detailed link status.
	Status() LinkStatus
	// SSID returns the joined network name, "" if none.
	SSID() string
	// LocalIP returns the assigned address, "" if none.
	LocalIP() string
}
