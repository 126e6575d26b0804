// Command proxiswitch switches a power outlet on the presence of a paired
// BLE beacon and serves a WiFi configuration portal on demand.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/control"
	"github.com/sweeney/proxiswitch/internal/gesture"
	"github.com/sweeney/proxiswitch/internal/gpio"
	"github.com/sweeney/proxiswitch/internal/ident"
	"github.com/sweeney/proxiswitch/internal/led"
	"github.com/sweeney/proxiswitch/internal/logging"
	"github.com/sweeney/proxiswitch/internal/portal"
	"github.com/sweeney/proxiswitch/internal/presence"
	"github.com/sweeney/proxiswitch/internal/radio"
	"github.com/sweeney/proxiswitch/internal/scan"
	"github.com/sweeney/proxiswitch/internal/settings"
	"github.com/sweeney/proxiswitch/internal/status"
	"github.com/sweeney/proxiswitch/internal/telemetry"
)

func main() {
	// A .env next to the binary seeds the environment; systemd units use
	// EnvironmentFile instead.
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options carries the full launch configuration. Defaults come from the
// environment so a unit file can configure the daemon without flags.
type options struct {
	settingsPath string
	broker       string
	listenAddr   string
	apIface      string
	apAddr       string
	gpioChip     string
	buttonPin    int
	relayPin     int
	learnLedPin  int
	closeLedPin  int
	scanWindow   time.Duration
	tick         time.Duration
	heartbeat    time.Duration
	logLevel     string
	demo         bool
}

func defaultOptions() options {
	return options{
		settingsPath: envOr("PROXISWITCH_SETTINGS", "/var/lib/proxiswitch/settings.json"),
		broker:       envOr("PROXISWITCH_BROKER", ""),
		listenAddr:   envOr("PROXISWITCH_LISTEN", ":80"),
		apIface:      envOr("PROXISWITCH_AP_IFACE", "wlan0"),
		apAddr:       envOr("PROXISWITCH_AP_ADDR", "192.168.4.1"),
		gpioChip:     envOr("PROXISWITCH_GPIO_CHIP", gpio.DefaultChip),
		buttonPin:    envOrInt("PROXISWITCH_BUTTON_PIN", gpio.DefaultButtonPin),
		relayPin:     envOrInt("PROXISWITCH_RELAY_PIN", gpio.DefaultRelayPin),
		learnLedPin:  envOrInt("PROXISWITCH_LEARN_LED_PIN", gpio.DefaultLearnLedPin),
		closeLedPin:  envOrInt("PROXISWITCH_CLOSE_LED_PIN", gpio.DefaultCloseLedPin),
		scanWindow:   envOrDuration("PROXISWITCH_SCAN_WINDOW", 5*time.Second),
		tick:         envOrDuration("PROXISWITCH_TICK", 50*time.Millisecond),
		heartbeat:    envOrDuration("PROXISWITCH_HEARTBEAT", time.Minute),
		logLevel:     envOr("PROXISWITCH_LOG_LEVEL", "info"),
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envOrInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func newRootCmd() *cobra.Command {
	opts := defaultOptions()
	cmd := &cobra.Command{
		Use:          "proxiswitch",
		Short:        "Presence-aware power outlet controller",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.settingsPath, "settings", opts.settingsPath, "settings file path")
	f.StringVar(&opts.broker, "broker", opts.broker, "MQTT broker address (empty disables telemetry)")
	f.StringVar(&opts.listenAddr, "listen", opts.listenAddr, "portal web server bind address")
	f.StringVar(&opts.apIface, "ap-iface", opts.apIface, "wireless interface for the configuration access point")
	f.StringVar(&opts.apAddr, "ap-addr", opts.apAddr, "IPv4 address the access point carries")
	f.StringVar(&opts.gpioChip, "gpio-chip", opts.gpioChip, "GPIO character device")
	f.IntVar(&opts.buttonPin, "button-pin", opts.buttonPin, "button input pin (BCM)")
	f.IntVar(&opts.relayPin, "relay-pin", opts.relayPin, "relay output pin (BCM)")
	f.IntVar(&opts.learnLedPin, "learn-led-pin", opts.learnLedPin, "learn LED output pin (BCM)")
	f.IntVar(&opts.closeLedPin, "close-led-pin", opts.closeLedPin, "close LED output pin (BCM)")
	f.DurationVar(&opts.scanWindow, "scan-window", opts.scanWindow, "BLE scan window length")
	f.DurationVar(&opts.tick, "tick", opts.tick, "control loop tick interval")
	f.DurationVar(&opts.heartbeat, "heartbeat", opts.heartbeat, "heartbeat interval (0 disables)")
	f.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	f.BoolVar(&opts.demo, "demo", false, "run with fake hardware and scripted beacons")
	return cmd
}

func run(opts options) error {
	log, err := logging.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	store := settings.NewStore(opts.settingsPath, log)
	if err := store.Load(); err != nil {
		log.Warn("persist settings", zap.Error(err))
	}
	startups, err := store.LogStartup()
	if err != nil {
		log.Warn("persist startup count", zap.Error(err))
	}

	deviceID := ident.DeviceID(interfaceMAC(opts.apIface, log))
	log.Info("starting",
		zap.String("device_id", deviceID),
		zap.Int("startups", startups),
		zap.Duration("tick", opts.tick),
		zap.Duration("scan_window", opts.scanWindow))

	hw, err := buildHardware(opts, log)
	if err != nil {
		return err
	}
	defer hw.close()

	arbiter := led.NewArbiter()
	if err := control.SetupArbiter(arbiter, hw.learnLed, hw.closeLed); err != nil {
		return err
	}

	beacons := presence.NewTracker(store.NearRSSI(), store.MaxNotSeen())
	scans := scan.NewSupervisor(hw.driver, beacons, opts.scanWindow, time.Now, log)
	gestures := gesture.NewMachine(gesture.Thresholds{}, arbiter, control.LedLearn, control.LedClose)

	tracker := status.NewTracker(deviceID, time.Now(), startups, status.Config{
		TickMs:       opts.tick.Milliseconds(),
		ScanWindowMs: opts.scanWindow.Milliseconds(),
		HeartbeatMs:  opts.heartbeat.Milliseconds(),
		Broker:       opts.broker,
		ListenAddr:   opts.listenAddr,
		SettingsPath: opts.settingsPath,
	})

	publisher, connection := buildTelemetry(opts.broker, deviceID, log)
	defer publisher.Close()

	apIP := net.ParseIP(opts.apAddr)
	if apIP == nil {
		return fmt.Errorf("invalid access point address %q", opts.apAddr)
	}
	ap := portal.NewNMCLIController(opts.apIface, ident.SSID(deviceID), ident.Hostname(deviceID), store.APPassword, log)
	p := portal.New(ap, store, tracker, opts.listenAddr, apIP, log)

	loop := control.NewLoop(control.Deps{
		Leds:       arbiter,
		Scans:      scans,
		Presence:   beacons,
		Gestures:   gestures,
		Store:      store,
		Portal:     p,
		Relay:      hw.relay,
		Button:     hw.button,
		Telemetry:  publisher,
		Connection: connection,
		Status:     tracker,
		Heartbeat:  opts.heartbeat,
		Log:        log,
	})
	if err := loop.Start(time.Now()); err != nil {
		return err
	}

	if err := publisher.PublishSystem(telemetry.NewStartupEvent(tracker.Snapshot())); err != nil {
		log.Warn("publish startup event", zap.Error(err))
	}

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(loop, publisher, log, time.Now, ticker.C, sigCh)

	if p.Active() {
		if derr := p.Disable(); derr != nil {
			log.Warn("portal teardown", zap.Error(derr))
		}
	}
	if errors.Is(err, control.ErrRestartRequested) {
		// The unit runs with Restart=always; exiting clean brings the
		// daemon back with factory settings.
		log.Warn("exiting for restart")
		return nil
	}
	return err
}

// runLoop ticks the control loop until a signal arrives or the loop asks to
// restart. Clock and channels are injected for tests.
func runLoop(loop *control.Loop, publisher telemetry.Publisher, log *zap.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			name := "UNKNOWN"
			switch s {
			case syscall.SIGINT:
				name = "SIGINT"
			case syscall.SIGTERM:
				name = "SIGTERM"
			}
			log.Info("shutting down", zap.String("signal", name))
			if err := publisher.PublishSystem(telemetry.NewShutdownEvent(now(), name)); err != nil {
				log.Warn("publish shutdown event", zap.Error(err))
			}
			return nil

		case <-tick:
			if err := loop.Tick(now()); err != nil {
				reason := "ERROR"
				if errors.Is(err, control.ErrRestartRequested) {
					reason = "FACTORY_RESET"
				}
				if perr := publisher.PublishSystem(telemetry.NewShutdownEvent(now(), reason)); perr != nil {
					log.Warn("publish shutdown event", zap.Error(perr))
				}
				return err
			}
		}
	}
}

// hardware bundles the peripherals and their teardown.
type hardware struct {
	button   gpio.Reader
	relay    gpio.Writer
	learnLed gpio.Writer
	closeLed gpio.Writer
	driver   radio.Driver
	close    func()
}

// buildHardware opens the GPIO lines and the radio. Demo mode substitutes
// fakes with two scripted beacons so the daemon runs on a desk.
func buildHardware(opts options, log *zap.Logger) (*hardware, error) {
	if opts.demo {
		log.Info("demo mode, using fake hardware")
		return &hardware{
			button:   gpio.NewFakeReader([]bool{false}),
			relay:    gpio.NewFakeWriter(),
			learnLed: gpio.NewFakeWriter(),
			closeLed: gpio.NewFakeWriter(),
			driver: radio.NewFakeDriver([]radio.Advertisement{
				{ID: "AA:BB:CC:11:22:33", RSSI: -52},
				{ID: "DD:EE:FF:44:55:66", RSSI: -71},
			}),
			close: func() {},
		}, nil
	}

	button, err := gpio.NewRealReader(opts.gpioChip, opts.buttonPin)
	if err != nil {
		return nil, fmt.Errorf("button line: %w", err)
	}
	relay, err := gpio.NewRealWriter(opts.gpioChip, opts.relayPin)
	if err != nil {
		button.Close()
		return nil, fmt.Errorf("relay line: %w", err)
	}
	learnLed, err := gpio.NewRealWriter(opts.gpioChip, opts.learnLedPin)
	if err != nil {
		relay.Close()
		button.Close()
		return nil, fmt.Errorf("learn led line: %w", err)
	}
	closeLed, err := gpio.NewRealWriter(opts.gpioChip, opts.closeLedPin)
	if err != nil {
		learnLed.Close()
		relay.Close()
		button.Close()
		return nil, fmt.Errorf("close led line: %w", err)
	}

	return &hardware{
		button:   button,
		relay:    relay,
		learnLed: learnLed,
		closeLed: closeLed,
		driver:   radio.NewBLEDriver(log),
		close: func() {
			closeLed.Close()
			learnLed.Close()
			relay.Close()
			button.Close()
		},
	}, nil
}

// buildTelemetry connects the MQTT publisher. An empty broker or a failed
// connect degrades to the no-op publisher; the outlet works without it.
func buildTelemetry(broker, deviceID string, log *zap.Logger) (telemetry.Publisher, telemetry.ConnectionStatus) {
	if broker == "" {
		log.Info("no broker configured, telemetry disabled")
		return telemetry.NopPublisher{}, nil
	}
	pub, err := telemetry.NewRealPublisher(broker, deviceID, log)
	if err != nil {
		log.Warn("broker unreachable, telemetry disabled", zap.Error(err))
		return telemetry.NopPublisher{}, nil
	}
	return pub, pub
}

// interfaceMAC returns the hardware address of the named interface. The
// device id has to stay stable across boots, so a missing interface falls
// back to the zero MAC instead of failing the boot.
func interfaceMAC(name string, log *zap.Logger) string {
	iface, err := net.InterfaceByName(name)
	if err != nil || len(iface.HardwareAddr) == 0 {
		log.Warn("interface mac unavailable, using zero mac",
			zap.String("iface", name), zap.Error(err))
		return "00:00:00:00:00:00"
	}
	return iface.HardwareAddr.String()
}
