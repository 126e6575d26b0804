package portal

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NetworkController brings the configuration access point up and down.
type NetworkController interface {
	Up() error
	Down() error
}

// connectionName is the NetworkManager profile the hotspot runs under.
const connectionName = "proxiswitch-portal"

// nmcliTimeout bounds each nmcli invocation.
const nmcliTimeout = 15 * time.Second

// runnerFunc executes a command and returns its combined output.
// Swappable in tests.
type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLIController manages the access point through NetworkManager.
// The password is read per activation, so a portal session that changes it
// takes effect the next time the access point comes up.
type NMCLIController struct {
	iface    string
	ssid     string
	hostname string
	password func() string
	log      *zap.Logger
	run      runnerFunc
}

// NewNMCLIController creates a controller for the given wireless interface.
func NewNMCLIController(iface, ssid, hostname string, password func() string, log *zap.Logger) *NMCLIController {
	return &NMCLIController{
		iface:    iface,
		ssid:     ssid,
		hostname: hostname,
		password: password,
		log:      log,
		run:      runCommand,
	}
}

// Up starts the hotspot and advertises the device hostname. A hostname
// failure is logged and not fatal; the access point is usable by address.
func (c *NMCLIController) Up() error {
	ctx, cancel := context.WithTimeout(context.Background(), nmcliTimeout)
	defer cancel()

	out, err := c.run(ctx, "nmcli",
		"device", "wifi", "hotspot",
		"ifname", c.iface,
		"con-name", connectionName,
		"ssid", c.ssid,
		"password", c.password())
	if err != nil {
		return fmt.Errorf("nmcli hotspot: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if c.hostname != "" {
		if out, err := c.run(ctx, "nmcli", "general", "hostname", c.hostname); err != nil {
			c.log.Warn("set hostname",
				zap.String("hostname", c.hostname),
				zap.Error(err),
				zap.String("output", strings.TrimSpace(string(out))))
		}
	}

	c.log.Info("access point up",
		zap.String("ssid", c.ssid),
		zap.String("iface", c.iface))
	return nil
}

// Down stops the hotspot.
func (c *NMCLIController) Down() error {
	ctx, cancel := context.WithTimeout(context.Background(), nmcliTimeout)
	defer cancel()

	out, err := c.run(ctx, "nmcli", "connection", "down", connectionName)
	if err != nil {
		return fmt.Errorf("nmcli connection down: %w: %s", err, strings.TrimSpace(string(out)))
	}

	c.log.Info("access point down", zap.String("ssid", c.ssid))
	return nil
}
