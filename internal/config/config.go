// Package config handles the static node configuration file. Values here are
// factory defaults: anything the operator changes at runtime is persisted in
// the preference store and wins over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	Hostname  string         `yaml:"hostname"`
	Timezone  string         `yaml:"timezone"` // IANA name, e.g. "Europe/Paris"
	DataDir   string         `yaml:"data_dir"`
	DebugLvl  int            `yaml:"debug_level"`
	IdleDelay time.Duration  `yaml:"idle_delay"` // post-iteration power-saving delay
	Heartbeat time.Duration  `yaml:"heartbeat"`  // 0 disables
	Network   NetworkConfig  `yaml:"network"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Serial    SerialConfig   `yaml:"serial"`
	Telnet    TelnetConfig   `yaml:"telnet"`
	Web       WebConfig      `yaml:"web"`
	Display   DisplayConfig  `yaml:"display"`
	Devices   []DeviceConfig `yaml:"devices"`
}

// NetworkConfig selects and tunes the link transport.
type NetworkConfig struct {
	Mode          string        `yaml:"mode"`      // "host", "nmcli" or "fake"
	Interface     string        `yaml:"interface"` // wireless interface for nmcli
	SSID          string        `yaml:"ssid"`
	Password      string        `yaml:"password"`
	APName        string        `yaml:"ap_name"` // defaults to hostname
	APPassword    string        `yaml:"ap_password"`
	APIP          string        `yaml:"ap_ip"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxRetries    int           `yaml:"max_retries"`
	KeepConnected bool          `yaml:"keep_connected"`
}

// MQTTConfig holds broker defaults.
type MQTTConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SerialConfig configures the serial console. Empty Port disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// TelnetConfig configures the telnet console. Empty Addr disables it.
type TelnetConfig struct {
	Addr string `yaml:"addr"`
}

// WebConfig configures the web console. Empty Addr disables it.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// DisplayConfig describes the character display geometry.
type DisplayConfig struct {
	Cols     int  `yaml:"cols"`
	Rows     int  `yaml:"rows"`
	Terminal bool `yaml:"terminal"` // render on the controlling terminal
}

// MaxDeviceIDLength bounds device ids so derived preference keys stay valid.
const MaxDeviceIDLength = 10

// DeviceConfig declares one attached peripheral.
type DeviceConfig struct {
	ID        string        `yaml:"id"`
	Kind      string        `yaml:"kind"` // "relay" or "switch"
	Name      string        `yaml:"name"`
	Topic     string        `yaml:"topic"`
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
}

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/nodekit/config.yaml, /etc/nodekit/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nodekit", "config.yaml"))
	}
	return append(paths, "/etc/nodekit/config.yaml")
}

// FindConfig locates a config file. An explicit path must exist; otherwise
// the first existing default path is returned, or "" if there is none.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Hostname:  "nodekit",
		Timezone:  "Local",
		DataDir:   ".",
		Heartbeat: 15 * time.Minute,
		Network: NetworkConfig{
			Mode:       "host",
			Interface:  "wlan0",
			APIP:       "192.168.1.249",
			BaseDelay:  100 * time.Millisecond,
			MaxRetries: 10,
		},
		MQTT: MQTTConfig{
			Port: 1883,
		},
		Serial: SerialConfig{
			Baud: 115200,
		},
		Web: WebConfig{
			Addr: ":80",
		},
		Display: DisplayConfig{
			Cols: 20,
			Rows: 4,
		},
	}
}

// Load reads path over the defaults. Environment variables in the file are
// expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Network.Mode {
	case "host", "nmcli", "fake":
	default:
		return fmt.Errorf("network.mode: unknown mode %q", c.Network.Mode)
	}
	if c.Display.Cols <= 0 || c.Display.Rows <= 0 {
		return fmt.Errorf("display: invalid geometry %dx%d", c.Display.Cols, c.Display.Rows)
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: missing id", i)
		}
		// "<id>_topic" must fit a preference key
		if len(d.ID) > MaxDeviceIDLength {
			return fmt.Errorf("devices[%d]: id %q longer than %d characters", i, d.ID, MaxDeviceIDLength)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		switch d.Kind {
		case "relay", "switch":
		default:
			return fmt.Errorf("devices[%d]: unknown kind %q", i, d.Kind)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
