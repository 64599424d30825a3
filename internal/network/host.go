package network

import (
	"net"
)

// HostTransport reports the state of an already configured host network,
// e.g. a wired board or a laptop. It cannot join or host networks.
type HostTransport struct {
	// Interface restricts the check to one interface; "" means any.
	Interface string

	// interfaces is swapped in tests.
	interfaces func() ([]net.Interface, error)
}

// NewHostTransport creates a HostTransport watching iface ("" for any).
func NewHostTransport(iface string) *HostTransport {
	return &HostTransport{Interface: iface, interfaces: net.Interfaces}
}

func (h *HostTransport) BeginStation(ssid, password string) error { return nil }

func (h *HostTransport) BeginAccessPoint(name, password string, ip net.IP) error {
	return ErrNotSupported
}

func (h *HostTransport) Disconnect() error { return ErrNotSupported }

func (h *HostTransport) IsConnected() bool { return h.LocalIP() != "" }

func (h *HostTransport) Status() LinkStatus {
	if h.IsConnected() {
		return LinkConnected
	}
	return LinkNoNetwork
}

// SSID returns the interface name carrying the address.
func (h *HostTransport) SSID() string {
	name, _ := h.lookup()
	return name
}

func (h *HostTransport) LocalIP() string {
	_, ip := h.lookup()
	return ip
}

// lookup returns the first up, non-loopback interface with an IPv4 address.
func (h *HostTransport) lookup() (string, string) {
	ifaces, err := h.interfaces()
	if err != nil {
		return "", ""
	}
	for _, iface := range ifaces {
		if h.Interface != "" && iface.Name != h.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				return iface.Name, v4.String()
			}
		}
	}
	return "", ""
}
