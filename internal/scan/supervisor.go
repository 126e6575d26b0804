// Package scan owns the radio scan lifecycle.
//
// The supervisor keeps one scan window open at a time, feeds results into
// the presence tracker, and carries a watchdog for windows that never
// report completion: past a ceiling of three windows the scan is forcibly
// stopped and restarted. Scanning suspends while the configuration network
// owns the radio; the suspended span is reported to the tracker so frozen
// sightings are not purged as absences.
package scan

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/presence"
	"github.com/sweeney/proxiswitch/internal/radio"
)

// watchdogFactor sets the stall ceiling as a multiple of the scan window.
const watchdogFactor = 3

type phase int

const (
	phaseIdle phase = iota
	phaseScanning
)

// Supervisor drives the scan state machine. Not safe for concurrent use;
// the control loop owns it. Results recorded by the radio goroutine go
// straight to the tracker, which does its own locking.
type Supervisor struct {
	driver  radio.Driver
	tracker *presence.Tracker
	window  time.Duration
	clock   func() time.Time
	log     *zap.Logger

	phase        phase
	startedAt    time.Time
	suspended    bool
	suspendedAt  time.Time
	pendingShift time.Duration
	expirations  int
}

// NewSupervisor creates a supervisor scanning in windows of the given
// duration. clock stamps incoming sightings and is injectable for tests.
func NewSupervisor(driver radio.Driver, tracker *presence.Tracker, window time.Duration, clock func() time.Time, log *zap.Logger) *Supervisor {
	return &Supervisor{
		driver:  driver,
		tracker: tracker,
		window:  window,
		clock:   clock,
		log:     log,
	}
}

// Tick advances the lifecycle: purge stale sightings, detect completed or
// stalled windows, start the next one. While suspended nothing happens and
// nothing is purged.
func (s *Supervisor) Tick(now time.Time) {
	if s.suspended {
		return
	}

	shift := s.pendingShift
	s.pendingShift = 0
	s.tracker.Purge(now, shift)

	if s.phase == phaseScanning {
		switch {
		case !s.driver.Busy():
			s.phase = phaseIdle
		case now.Sub(s.startedAt) > s.ceiling():
			s.expirations++
			s.log.Warn("scan watchdog expired, restarting scan",
				zap.Duration("elapsed", now.Sub(s.startedAt)),
				zap.Int("expirations", s.expirations))
			if err := s.driver.Stop(); err != nil {
				s.log.Warn("stop stalled scan", zap.Error(err))
			}
			s.driver.ClearResults()
			s.phase = phaseIdle
		}
	}

	if s.phase == phaseIdle {
		s.start(now)
	}
}

// Suspend stops scanning while another subsystem owns the radio. Sightings
// freeze in place until Resume.
func (s *Supervisor) Suspend(now time.Time) {
	if s.suspended {
		return
	}
	s.suspended = true
	s.suspendedAt = now
	if s.phase == phaseScanning {
		if err := s.driver.Stop(); err != nil {
			s.log.Warn("stop scan for suspend", zap.Error(err))
		}
		s.driver.ClearResults()
		s.phase = phaseIdle
	}
	s.log.Info("scanning suspended")
}

// Resume re-allows scanning. The suspended span is handed to the next purge
// as a timestamp shift.
func (s *Supervisor) Resume(now time.Time) {
	if !s.suspended {
		return
	}
	s.suspended = false
	s.pendingShift += now.Sub(s.suspendedAt)
	s.log.Info("scanning resumed", zap.Duration("suspended", now.Sub(s.suspendedAt)))
}

// Suspended reports whether scanning is currently suspended.
func (s *Supervisor) Suspended() bool { return s.suspended }

// Scanning reports whether a window is currently open.
func (s *Supervisor) Scanning() bool { return s.phase == phaseScanning }

// WatchdogExpirations returns the number of forced restarts since start.
func (s *Supervisor) WatchdogExpirations() int { return s.expirations }

func (s *Supervisor) ceiling() time.Duration { return watchdogFactor * s.window }

func (s *Supervisor) start(now time.Time) {
	if err := s.driver.Start(s.window, s.onResult); err != nil {
		s.log.Warn("start scan", zap.Error(err))
		return
	}
	s.phase = phaseScanning
	s.startedAt = now
}

// onResult runs on the radio driver's goroutine.
func (s *Supervisor) onResult(id string, rssi int) {
	if s.tracker.RecordSighting(id, rssi, s.clock()) {
		return
	}
	s.log.Debug("ignored sighting", zap.String("id", id), zap.Int("rssi", rssi))
}
