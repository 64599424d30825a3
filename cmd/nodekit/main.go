// Command nodekit runs a connected node: wifi and MQTT supervision, GPIO
// devices and a command console over serial, stdin, telnet and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/nodekit/internal/app"
	"github.com/sweeney/nodekit/internal/command"
	"github.com/sweeney/nodekit/internal/config"
	"github.com/sweeney/nodekit/internal/device"
	"github.com/sweeney/nodekit/internal/display"
	"github.com/sweeney/nodekit/internal/event"
	"github.com/sweeney/nodekit/internal/gpio"
	"github.com/sweeney/nodekit/internal/logic"
	"github.com/sweeney/nodekit/internal/mqtt"
	"github.com/sweeney/nodekit/internal/network"
	"github.com/sweeney/nodekit/internal/prefs"
	"github.com/sweeney/nodekit/internal/schedule"
	"github.com/sweeney/nodekit/internal/status"
	"github.com/sweeney/nodekit/internal/web"
)

// overrides carries flag values that win over the config file.
type overrides struct {
	hostname string
	dataDir  string
	network  string
	http     string
	telnet   string
	serial   string
	baud     int
	debug    int
	terminal bool
}

func main() {
	configPath := flag.String("config", "", "Config file (default: search ./config.yaml, ~/.config/nodekit, /etc/nodekit)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	var o overrides
	flag.StringVar(&o.hostname, "hostname", "", "Node hostname")
	flag.StringVar(&o.dataDir, "data", "", "Directory holding prefs.db")
	flag.StringVar(&o.network, "network", "", `Network transport: "host", "nmcli" or "fake"`)
	flag.StringVar(&o.http, "http", "", `HTTP console address ("off" disables)`)
	flag.StringVar(&o.telnet, "telnet", "", `Telnet console address ("off" disables)`)
	flag.StringVar(&o.serial, "serial", "", `Serial console port ("off" disables)`)
	flag.IntVar(&o.baud, "baud", 0, "Serial console baud rate")
	flag.IntVar(&o.debug, "debug", -1, "Initial debug level (-1 keeps the config value)")
	flag.BoolVar(&o.terminal, "terminal", false, "Render the display on this terminal")

	flag.Parse()

	path, err := config.FindConfig(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if path != "" {
		log.Printf("config: %s", path)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// apply copies set flags over cfg.
func (o overrides) apply(cfg *config.Config) {
	if o.hostname != "" {
		cfg.Hostname = o.hostname
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.network != "" {
		cfg.Network.Mode = o.network
	}
	if o.http != "" {
		cfg.Web.Addr = offOr(o.http)
	}
	if o.telnet != "" {
		cfg.Telnet.Addr = offOr(o.telnet)
	}
	if o.serial != "" {
		cfg.Serial.Port = offOr(o.serial)
	}
	if o.baud > 0 {
		cfg.Serial.Baud = o.baud
	}
	if o.debug >= 0 {
		cfg.DebugLvl = o.debug
	}
	if o.terminal {
		cfg.Display.Terminal = true
	}
}

func offOr(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func run(cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := prefs.OpenSQLite(filepath.Join(cfg.DataDir, "prefs.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	p := prefs.New(store)

	transport, err := newTransport(cfg.Network)
	if err != nil {
		return err
	}

	hostname := p.GetString(app.PrefHostname, cfg.Hostname)
	client := mqtt.NewPahoClient()
	will, _ := mqtt.FormatSystemPayload(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "connection lost",
		Retained:  true,
	})
	client.SetWill(mqtt.SystemTopic(hostname), will)

	tracker := status.NewTracker(time.Now(), status.Config{
		Hostname:    hostname,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		HTTPAddr:    cfg.Web.Addr,
		TelnetAddr:  cfg.Telnet.Addr,
		SerialPort:  cfg.Serial.Port,
	})
	logs := web.NewLogRing(web.DefaultLogLines)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The terminal owns stdin and stdout while it is up.
	var renderer display.Renderer
	if cfg.Display.Terminal {
		logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "nodekit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)

		term := display.NewTerminal(hostname, cfg.Display.Cols, cfg.Display.Rows)
		renderer = term
		go func() {
			if err := term.Run(); err != nil {
				log.Printf("terminal: %v", err)
			}
			cancel()
		}()
		defer term.Stop()
	}
	lcd := display.NewBuffer(cfg.Display.Cols, cfg.Display.Rows, renderer)

	var webCommands <-chan string
	if cfg.Web.Addr != "" {
		srv := web.New(cfg.Web.Addr, tracker, logs)
		webCommands = srv.Commands()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http console listening on %s", cfg.Web.Addr)
	}

	// Long-lived sources outlive restarts; each run forwards them to its
	// own console.
	var sources []<-chan command.Input
	var serialPort *command.SerialPort
	if cfg.Serial.Port != "" {
		serialPort, err = command.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		defer serialPort.Close()
		ch := make(chan command.Input, 16)
		go command.ReadInto(ctx, "serial", serialPort, ch)
		sources = append(sources, ch)
	}
	if !cfg.Display.Terminal {
		ch := make(chan command.Input, 16)
		go command.ReadInto(ctx, "stdin", os.Stdin, ch)
		sources = append(sources, ch)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	reason := "UNKNOWN"
	go func() {
		select {
		case s := <-sigCh:
			log.Printf("received %v, shutting down", s)
			reason = signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		ctrl := app.New(app.Config{
			Hostname:    hostname,
			DebugLevel:  cfg.DebugLvl,
			IdleDelay:   cfg.IdleDelay,
			Heartbeat:   cfg.Heartbeat,
			AutoConnect: true,
			Prefs:       p,
			Clock:       schedule.SystemClock{},
			Location:    loc,
			Transport:   transport,
			Network:     networkOptions(cfg.Network, hostname),
			MQTTClient:  client,
			MQTT:        mqtt.Options{ClientID: hostname + "-" + shortID()},
			Display:     lcd,
			Tracker:     tracker,
			Logs:        logs,
			WebCommands: webCommands,
		})
		ctrl.Network().SetDefaultCredentials(cfg.Network.SSID, cfg.Network.Password)
		ctrl.MQTT().SetDefaults(cfg.MQTT.Server, cfg.MQTT.Port, cfg.MQTT.Username, cfg.MQTT.Password)

		if !cfg.Display.Terminal {
			ctrl.Console().AddWriter("stdout", os.Stdout)
		}
		if serialPort != nil {
			ctrl.Console().AddWriter("serial", serialPort)
		}

		devs, err := openDevices(cfg.Devices, ctrl.Bus(), p, realLines{})
		if err != nil {
			ctrl.Shutdown("ERROR")
			return err
		}
		for _, d := range devs {
			if err := ctrl.AddDevice(d); err != nil {
				ctrl.Shutdown("ERROR")
				return err
			}
		}

		runCtx, stopRun := context.WithCancel(ctx)
		for _, src := range sources {
			go forward(runCtx, src, ctrl.Console().Inputs())
		}
		var telnet *command.TelnetServer
		if cfg.Telnet.Addr != "" {
			telnet = command.NewTelnetServer(cfg.Telnet.Addr, ctrl.Console())
			telnet.Banner = "nodekit " + hostname
			go func() {
				if err := telnet.Start(runCtx); err != nil {
					log.Printf("telnet server error: %v", err)
				}
			}()
		}

		log.Printf("started: hostname=%s network=%s devices=%d", hostname, cfg.Network.Mode, len(devs))
		err = ctrl.Run(runCtx)
		stopRun()
		// The next run binds the same address.
		if telnet != nil {
			telnet.Shutdown()
		}

		if errors.Is(err, app.ErrRestart) {
			if err := ctrl.Shutdown("RESTART"); err != nil {
				log.Printf("shutdown: %v", err)
			}
			hostname = ctrl.Hostname()
			log.Printf("restarting")
			continue
		}
		if err := ctrl.Shutdown(reason); err != nil {
			log.Printf("shutdown: %v", err)
		}
		return err
	}
}

func newTransport(cfg config.NetworkConfig) (network.Transport, error) {
	switch cfg.Mode {
	case "host":
		return network.NewHostTransport(cfg.Interface), nil
	case "nmcli":
		return network.NewNMCLITransport(cfg.Interface, nil), nil
	case "fake":
		t := network.NewFakeTransport()
		t.ConnectOnBegin = true
		return t, nil
	default:
		return nil, fmt.Errorf("unknown network mode %q", cfg.Mode)
	}
}

func networkOptions(cfg config.NetworkConfig, hostname string) network.Options {
	opts := network.Options{
		BaseDelay:     cfg.BaseDelay,
		MaxRetries:    cfg.MaxRetries,
		KeepConnected: cfg.KeepConnected,
		APName:        cfg.APName,
		APPassword:    cfg.APPassword,
		APIP:          net.ParseIP(cfg.APIP),
	}
	if opts.APName == "" {
		opts.APName = hostname
	}
	return opts
}

// lineOpener opens GPIO lines for devices.
type lineOpener interface {
	Input(chip string, line int, activeLow bool) (gpio.Reader, error)
	Output(chip string, line int, activeLow bool) (gpio.Writer, error)
}

type realLines struct{}

func (realLines) Input(chip string, line int, activeLow bool) (gpio.Reader, error) {
	l, err := gpio.OpenInput(chip, line, activeLow)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (realLines) Output(chip string, line int, activeLow bool) (gpio.Writer, error) {
	l, err := gpio.OpenOutput(chip, line, activeLow, false)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// openDevices builds the configured devices. Lines opened before a failure
// are released.
func openDevices(cfgs []config.DeviceConfig, bus *event.Bus, p *prefs.Preferences, lines lineOpener) ([]device.Device, error) {
	var devs []device.Device
	fail := func(err error) ([]device.Device, error) {
		for _, d := range devs {
			if c, ok := d.(io.Closer); ok {
				c.Close()
			}
		}
		return nil, err
	}

	for _, dc := range cfgs {
		chip := dc.Chip
		if chip == "" {
			chip = gpio.DefaultChip
		}
		name := dc.Name
		if name == "" {
			name = dc.ID
		}
		switch dc.Kind {
		case "relay":
			w, err := lines.Output(chip, dc.Line, dc.ActiveLow)
			if err != nil {
				return fail(fmt.Errorf("device %s: %w", dc.ID, err))
			}
			devs = append(devs, device.NewRelay(bus, p, dc.ID, name, dc.Topic, w))
		case "switch":
			r, err := lines.Input(chip, dc.Line, dc.ActiveLow)
			if err != nil {
				return fail(fmt.Errorf("device %s: %w", dc.ID, err))
			}
			deb := dc.Debounce
			if deb <= 0 {
				deb = 50 * time.Millisecond
			}
			devs = append(devs, device.NewSwitch(bus, p, dc.ID, name, dc.Topic, r, logic.NewDebouncer(deb), schedule.SystemClock{}))
		default:
			return fail(fmt.Errorf("device %s: unknown kind %q", dc.ID, dc.Kind))
		}
	}
	return devs, nil
}

// forward copies in to out until ctx is cancelled.
func forward(ctx context.Context, in <-chan command.Input, out chan<- command.Input) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-in:
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
