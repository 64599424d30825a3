package network

import (
	"net"
)

// FakeTransport is a scripted Transport for tests and for running the node
// without touching the host network.
type FakeTransport struct {
	Connected bool
	Link      LinkStatus
	IP        string

	// ConnectOnBegin makes BeginStation succeed immediately.
	ConnectOnBegin bool
	// BeginErr, APErr are returned by BeginStation and BeginAccessPoint.
	BeginErr error
	APErr    error

	StationCalls []string // SSIDs passed to BeginStation
	APCalls      []string // names passed to BeginAccessPoint
	Disconnects  int

	ssid string
}

// NewFakeTransport returns a transport that never connects on its own.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{IP: "10.0.0.42"}
}

func (f *FakeTransport) BeginStation(ssid, password string) error {
	f.StationCalls = append(f.StationCalls, ssid)
	if f.BeginErr != nil {
		return f.BeginErr
	}
	f.ssid = ssid
	if f.ConnectOnBegin {
		f.Connected = true
		f.Link = LinkConnected
	} else if f.Link == LinkIdle {
		f.Link = LinkConnecting
	}
	return nil
}

func (f *FakeTransport) BeginAccessPoint(name, password string, ip net.IP) error {
	f.APCalls = append(f.APCalls, name)
	return f.APErr
}

func (f *FakeTransport) Disconnect() error {
	f.Disconnects++
	f.Connected = false
	f.Link = LinkDisconnected
	return nil
}

func (f *FakeTransport) IsConnected() bool  { return f.Connected }
func (f *FakeTransport) Status() LinkStatus { return f.Link }
func (f *FakeTransport) SSID() string       { return f.ssid }

func (f *FakeTransport) LocalIP() string {
	if !f.Connected {
		return ""
	}
	return f.IP
}

// SetConnected flips the link up or down.
func (f *FakeTransport) SetConnected(up bool) {
	f.Connected = up
	if up {
		f.Link = LinkConnected
	} else {
		f.Link = LinkDisconnected
	}
}
