// Package portal runs the on-demand configuration network: a WiFi access
// point, a catch-all DNS responder, and the settings web server.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/status"
)

// shutdownTimeout bounds the graceful HTTP shutdown on Disable.
const shutdownTimeout = 3 * time.Second

// Portal bundles the access point, DNS and web server lifecycle.
//
// Enable, Disable and Active are only called from the control loop
// goroutine. The disable request crosses over from an HTTP handler
// goroutine, hence the atomic.
type Portal struct {
	controller NetworkController
	store      SettingsStore
	tracker    *status.Tracker
	listenAddr string
	apIP       net.IP
	log        *zap.Logger

	active     bool
	web        *Server
	dns        *resolver
	disableReq atomic.Bool
}

// New creates a Portal. listenAddr is the web server's bind address;
// apIP is the address the access point (and the DNS answers) carry.
func New(controller NetworkController, store SettingsStore, tracker *status.Tracker, listenAddr string, apIP net.IP, log *zap.Logger) *Portal {
	return &Portal{
		controller: controller,
		store:      store,
		tracker:    tracker,
		listenAddr: listenAddr,
		apIP:       apIP,
		log:        log,
	}
}

// Enable brings up the access point, then DNS, then the web server.
// Enabling an active portal is a no-op. A web server failure tears the
// earlier pieces down again and returns the error; a DNS failure is
// tolerated because clients can still reach the portal by address.
func (p *Portal) Enable() error {
	if p.active {
		return nil
	}

	if err := p.controller.Up(); err != nil {
		return fmt.Errorf("access point: %w", err)
	}

	dnsSrv := newResolver(net.JoinHostPort(p.apIP.String(), "53"), p.apIP, p.log)
	if err := dnsSrv.start(); err != nil {
		p.log.Warn("portal dns unavailable", zap.Error(err))
		dnsSrv = nil
	}

	web := NewServer(p.listenAddr, p.store, p.tracker, p.requestDisable, p.log)
	if err := web.Start(); err != nil {
		if dnsSrv != nil {
			dnsSrv.stop()
		}
		if derr := p.controller.Down(); derr != nil {
			p.log.Warn("access point teardown failed", zap.Error(derr))
		}
		return fmt.Errorf("portal web server: %w", err)
	}

	p.dns = dnsSrv
	p.web = web
	p.active = true
	p.disableReq.Store(false)
	p.log.Info("portal enabled",
		zap.String("listen", web.Addr()),
		zap.String("ap", p.apIP.String()))
	return nil
}

// Disable tears the portal down in reverse order: web server, DNS,
// access point. Disabling an inactive portal is a no-op. All steps run
// even when earlier ones fail; their errors are joined.
func (p *Portal) Disable() error {
	if !p.active {
		return nil
	}

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.web.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("web server: %w", err))
	}
	if p.dns != nil {
		if err := p.dns.stop(); err != nil {
			errs = append(errs, fmt.Errorf("dns: %w", err))
		}
	}
	if err := p.controller.Down(); err != nil {
		errs = append(errs, fmt.Errorf("access point: %w", err))
	}

	p.web = nil
	p.dns = nil
	p.active = false
	p.log.Info("portal disabled")
	return errors.Join(errs...)
}

// Active reports whether the portal is up.
func (p *Portal) Active() bool {
	return p.active
}

// Addr returns the web server's listen address while the portal is up,
// empty otherwise.
func (p *Portal) Addr() string {
	if !p.active {
		return ""
	}
	return p.web.Addr()
}

func (p *Portal) requestDisable() {
	p.disableReq.Store(true)
}

// ConsumeDisableRequest reports whether the settings form asked for the
// portal to close, clearing the request. Each request is delivered once.
func (p *Portal) ConsumeDisableRequest() bool {
	return p.disableReq.Swap(false)
}
