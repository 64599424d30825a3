package network

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// RunFunc executes a command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errOutput := strings.TrimSpace(stderr.String())
		if len(errOutput) > 200 {
			errOutput = errOutput[:200]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, errOutput)
	}
	return stdout.Bytes(), nil
}

// NMCLITransport drives NetworkManager through the nmcli tool. Joining runs
// in a background goroutine; status queries are cached for StatusTTL so the
// state machine can poll without spawning a process every pass.
type NMCLITransport struct {
	Interface   string
	JoinTimeout time.Duration
	StatusTTL   time.Duration

	run RunFunc

	mu        sync.Mutex
	joining   bool
	joinErr   error
	wrongPass bool
	checked   time.Time
	state     string // nmcli device state, e.g. "connected"
	conn      string
	ip        string
}

// NewNMCLITransport creates a transport for the wireless interface iface.
// A nil run uses os/exec.
func NewNMCLITransport(iface string, run RunFunc) *NMCLITransport {
	if run == nil {
		run = runCommand
	}
	return &NMCLITransport{
		Interface:   iface,
		JoinTimeout: 30 * time.Second,
		StatusTTL:   time.Second,
		run:         run,
	}
}

// BeginStation starts "nmcli device wifi connect" in the background.
func (n *NMCLITransport) BeginStation(ssid, password string) error {
	n.mu.Lock()
	if n.joining {
		n.mu.Unlock()
		return nil
	}
	n.joining = true
	n.joinErr = nil
	n.wrongPass = false
	n.checked = time.Time{}
	n.mu.Unlock()

	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", n.Interface)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.JoinTimeout)
		defer cancel()
		_, err := n.run(ctx, "nmcli", args...)

		n.mu.Lock()
		defer n.mu.Unlock()
		n.joining = false
		n.joinErr = err
		n.wrongPass = err != nil && isAuthFailure(err.Error())
		n.checked = time.Time{}
	}()
	return nil
}

// BeginAccessPoint starts a NetworkManager hotspot and pins its address.
func (n *NMCLITransport) BeginAccessPoint(name, password string, ip net.IP) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.JoinTimeout)
	defer cancel()

	args := []string{"device", "wifi", "hotspot", "ifname", n.Interface, "con-name", "Hotspot", "ssid", name}
	if password != "" {
		args = append(args, "password", password)
	}
	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("start hotspot: %w", err)
	}
	if ip != nil {
		if _, err := n.run(ctx, "nmcli", "connection", "modify", "Hotspot",
			"ipv4.method", "shared", "ipv4.addresses", ip.String()+"/24"); err != nil {
			return fmt.Errorf("set hotspot address: %w", err)
		}
	}
	n.invalidate()
	return nil
}

func (n *NMCLITransport) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := n.run(ctx, "nmcli", "device", "disconnect", n.Interface); err != nil {
		return fmt.Errorf("disconnect %s: %w", n.Interface, err)
	}
	n.invalidate()
	return nil
}

func (n *NMCLITransport) IsConnected() bool {
	n.refresh()
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == "connected" && n.ip != ""
}

func (n *NMCLITransport) Status() LinkStatus {
	n.refresh()
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.joining:
		return LinkConnecting
	case n.wrongPass:
		return LinkWrongPassword
	case n.state == "connected":
		return LinkConnected
	case strings.HasPrefix(n.state, "connecting"):
		return LinkConnecting
	case n.joinErr != nil:
		return LinkFailed
	case n.state == "disconnected":
		return LinkDisconnected
	case n.state == "unavailable" || n.state == "":
		return LinkNoNetwork
	default:
		return LinkIdle
	}
}

func (n *NMCLITransport) SSID() string {
	n.refresh()
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

func (n *NMCLITransport) LocalIP() string {
	n.refresh()
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ip
}

func (n *NMCLITransport) invalidate() {
	n.mu.Lock()
	n.checked = time.Time{}
	n.mu.Unlock()
}

// refresh re-reads device state when the cache has expired.
func (n *NMCLITransport) refresh() {
	n.mu.Lock()
	if time.Since(n.checked) < n.StatusTTL {
		n.mu.Unlock()
		return
	}
	n.checked = time.Now()
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, conn, ip := "", "", ""
	if out, err := n.run(ctx, "nmcli", "-t", "-f", "DEVICE,STATE,CONNECTION", "device", "status"); err == nil {
		state, conn = parseDeviceStatus(string(out), n.Interface)
	}
	if state == "connected" {
		if out, err := n.run(ctx, "nmcli", "-t", "-g", "IP4.ADDRESS", "device", "show", n.Interface); err == nil {
			ip = parseIP4Address(string(out))
		}
	}

	n.mu.Lock()
	n.state, n.conn, n.ip = state, conn, ip
	n.mu.Unlock()
}

// parseDeviceStatus finds iface in terse "DEVICE:STATE:CONNECTION" output.
func parseDeviceStatus(out, iface string) (state, conn string) {
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) < 3 || fields[0] != iface {
			continue
		}
		return fields[1], fields[2]
	}
	return "", ""
}

// splitTerse splits nmcli terse output on unescaped colons.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// parseIP4Address returns the first address from "a.b.c.d/nn" lines.
func parseIP4Address(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// -g output joins multiple addresses with " | "
		line, _, _ = strings.Cut(line, " | ")
		addr, _, _ := strings.Cut(line, "/")
		if net.ParseIP(addr) != nil {
			return addr
		}
	}
	return ""
}

func isAuthFailure(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "secrets were required") ||
		strings.Contains(msg, "invalid password") ||
		strings.Contains(msg, "802-11-wireless-security")
}
