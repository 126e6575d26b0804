// Package control ties the core components together into the periodic tick.
//
// The loop owns every piece of mutable device state that crosses component
// boundaries: the pairing target, the relay level, the learning window, the
// configuration portal session, the factory-reset confirmation. One Tick call
// advances everything exactly once; time arrives as a parameter so the whole
// loop runs under test without sleeping.
package control

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/gesture"
	"github.com/sweeney/proxiswitch/internal/gpio"
	"github.com/sweeney/proxiswitch/internal/led"
	"github.com/sweeney/proxiswitch/internal/presence"
	"github.com/sweeney/proxiswitch/internal/scan"
	"github.com/sweeney/proxiswitch/internal/status"
	"github.com/sweeney/proxiswitch/internal/telemetry"
)

// LED ids as registered with the arbiter.
const (
	LedLearn = "learn"
	LedClose = "close"
)

// Arbiter caller ids, ranked. The factory-reset confirmation outranks
// everything; the close-proximity indicator yields to all other feedback.
const (
	callerFactory = "factory"
	callerLearn   = "learn"
	callerNetwork = "network"
	callerClose   = "close"
)

// SetupArbiter registers both indicator LEDs and the caller ranking.
func SetupArbiter(a *led.Arbiter, learnOut, closeOut led.Output) error {
	if err := a.AddLed(LedLearn, learnOut); err != nil {
		return err
	}
	if err := a.AddLed(LedClose, closeOut); err != nil {
		return err
	}
	a.SetPriority(callerFactory, 1)
	a.SetPriority(gesture.Caller, 2)
	a.SetPriority(callerLearn, 3)
	a.SetPriority(callerNetwork, 4)
	a.SetPriority(callerClose, 5)
	return nil
}

// confirmDuration is how long the factory-reset confirmation display runs
// before the wipe happens.
const confirmDuration = 3500 * time.Millisecond

// confirmCadence is the alternation period of the confirmation display.
const confirmCadence = 100 * time.Millisecond

// networkCadence is the flash period of the portal-active indicator.
const networkCadence = 500 * time.Millisecond

// ErrRestartRequested is returned by Tick when a confirmed factory reset
// wants the process to exit and come back up clean.
var ErrRestartRequested = errors.New("restart requested")

// SettingsStore is the slice of the settings store the loop reads and
// writes. Implemented by *settings.Store.
type SettingsStore interface {
	NearRSSI() int
	CloseRSSI() int
	MaxNotSeen() time.Duration
	LearnDuration() time.Duration
	WifiOnThreshold() time.Duration
	WifiOffThreshold() time.Duration
	LearnThreshold() time.Duration
	FactoryResetThreshold() time.Duration
	Paired() (string, bool)
	SetPaired(id string) error
	FactoryDefault() error
}

// Portal is the configuration portal as the loop sees it. Implemented by
// *portal.Portal.
type Portal interface {
	Enable() error
	Disable() error
	Active() bool
	ConsumeDisableRequest() bool
}

// Deps carries everything the loop drives. All fields are required except
// Connection, which may be nil when telemetry is disabled.
type Deps struct {
	Leds     *led.Arbiter
	Scans    *scan.Supervisor
	Presence *presence.Tracker
	Gestures *gesture.Machine
	Store    SettingsStore
	Portal   Portal

	Relay  gpio.Writer
	Button gpio.Reader

	Telemetry  telemetry.Publisher
	Connection telemetry.ConnectionStatus
	Status     *status.Tracker

	Heartbeat time.Duration
	Log       *zap.Logger
}

// Loop is the control loop state. Not safe for concurrent use; one
// goroutine calls Start once and then Tick forever.
type Loop struct {
	deps Deps

	target     presence.Target
	relayLevel bool
	closeRSSI  int

	learning       bool
	learnStartedAt time.Time
	learnDuration  time.Duration

	networkOnAt time.Time

	confirming       bool
	confirmStartedAt time.Time

	lastHeartbeatAt time.Time
}

// NewLoop creates a loop over the given dependencies.
func NewLoop(deps Deps) *Loop {
	return &Loop{deps: deps}
}

// Start applies the persisted settings and drives the relay to its safe
// initial level. Call once before the first Tick.
func (l *Loop) Start(now time.Time) error {
	l.applySettings()
	if err := l.deps.Relay.Write(false); err != nil {
		return fmt.Errorf("relay init: %w", err)
	}
	l.relayLevel = false
	l.lastHeartbeatAt = now
	return nil
}

// Tick advances the device by one step. Returns ErrRestartRequested after a
// confirmed factory reset; any other error is already logged and the loop
// keeps running.
func (l *Loop) Tick(now time.Time) error {
	if err := l.deps.Leds.Tick(); err != nil {
		l.deps.Log.Warn("led write failed", zap.Error(err))
	}

	if l.confirming {
		return l.confirmTick(now)
	}

	l.deps.Scans.Tick(now)
	l.updateRelay(now)
	l.updateCloseIndicator()
	l.updateNetworkIndicator(now)
	l.finishLearn(now)

	pressed, err := l.deps.Button.Read()
	if err != nil {
		l.deps.Log.Warn("button read failed", zap.Error(err))
		pressed = false
	}
	trigger := l.deps.Gestures.Tick(pressed, l.deps.Portal.Active(), now)
	l.dispatch(trigger, now)

	if l.deps.Portal.ConsumeDisableRequest() && l.deps.Portal.Active() {
		l.networkOff(now)
	}

	l.updateStatus()
	l.heartbeatTick(now)
	return nil
}

// applySettings pushes the persisted configuration into the components that
// cache it. Runs at boot and again when a portal session ends, so edits made
// through the settings page take effect the moment the radio comes back.
func (l *Loop) applySettings() {
	store := l.deps.Store
	l.deps.Presence.SetNearThreshold(store.NearRSSI())
	l.deps.Presence.SetMaxNotSeen(store.MaxNotSeen())
	l.closeRSSI = store.CloseRSSI()
	l.deps.Gestures.SetThresholds(gesture.Thresholds{
		WifiOn:       store.WifiOnThreshold(),
		WifiOff:      store.WifiOffThreshold(),
		Learn:        store.LearnThreshold(),
		FactoryReset: store.FactoryResetThreshold(),
	})

	if id, ok := store.Paired(); ok {
		l.target = presence.TargetOf(id)
		l.deps.Status.SetPaired(id)
	} else {
		l.target = presence.Target{}
		l.deps.Status.SetPaired("")
	}
	l.deps.Presence.SetTarget(l.target)
}

// updateRelay drives the relay from the pairing target's presence. The level
// is written only on change; a failed write is retried next tick because the
// cached level stays behind.
func (l *Loop) updateRelay(now time.Time) {
	want := l.target.Valid && l.deps.Presence.IsPresent(l.target.ID)
	if want == l.relayLevel {
		return
	}
	if err := l.deps.Relay.Write(want); err != nil {
		l.deps.Log.Error("relay write failed", zap.Bool("level", want), zap.Error(err))
		return
	}
	l.relayLevel = want

	eventType := telemetry.EventRelayOff
	rssi := 0
	if want {
		eventType = telemetry.EventRelayOn
		rssi = l.targetRSSI()
	}
	l.deps.Log.Info("relay switched",
		zap.String("level", status.RelayString(want)),
		zap.String("device", l.target.ID))
	l.publishEvent(telemetry.Event{
		Timestamp: now,
		Type:      eventType,
		Device:    l.target.ID,
		RSSI:      rssi,
	})
}

// targetRSSI returns the pairing target's last sighted signal strength, or
// zero when it has no record.
func (l *Loop) targetRSSI() int {
	for _, s := range l.deps.Presence.Snapshot() {
		if s.ID == l.target.ID {
			return s.RSSI
		}
	}
	return 0
}

// updateCloseIndicator lights the close LED while any beacon is within the
// close-proximity threshold.
func (l *Loop) updateCloseIndicator() {
	if l.deps.Presence.AnyAtLeast(l.closeRSSI) {
		l.deps.Leds.Demand(LedClose, callerClose, true)
		return
	}
	l.deps.Leds.ClearOff(LedClose, callerClose)
}

// updateNetworkIndicator flashes the close LED while the portal is up. The
// phase derives from time since activation, not tick count.
func (l *Loop) updateNetworkIndicator(now time.Time) {
	if !l.deps.Portal.Active() {
		return
	}
	level := led.Flash(now.Sub(l.networkOnAt), networkCadence)
	l.deps.Leds.Demand(LedClose, callerNetwork, level)
}

// finishLearn closes an expired learning window and adopts the nearest
// beacon. An empty window keeps the previous pairing.
func (l *Loop) finishLearn(now time.Time) {
	if !l.learning || now.Sub(l.learnStartedAt) < l.learnDuration {
		return
	}
	l.learning = false
	l.deps.Presence.SetLearning(false)
	l.deps.Status.SetLearning(false)
	l.deps.Leds.ClearOff(LedLearn, callerLearn)

	id, ok := l.deps.Presence.NearestDevice()
	if !ok {
		l.deps.Log.Info("learn window closed, no beacons seen, pairing unchanged")
		return
	}
	if l.target.Matches(id) {
		l.deps.Log.Info("learn window closed, nearest beacon already paired",
			zap.String("device", id))
	} else {
		l.target = presence.TargetOf(id)
		l.deps.Presence.SetTarget(l.target)
		l.deps.Status.SetPaired(id)
		if err := l.deps.Store.SetPaired(id); err != nil {
			l.deps.Log.Error("persist pairing failed", zap.String("device", id), zap.Error(err))
		}
		l.deps.Log.Info("paired", zap.String("device", id))
	}
	l.publishEvent(telemetry.Event{
		Timestamp: now,
		Type:      telemetry.EventLearnComplete,
		Device:    id,
		RSSI:      l.targetRSSI(),
	})
}

// dispatch acts on a classified button gesture.
func (l *Loop) dispatch(trigger gesture.Trigger, now time.Time) {
	if trigger == gesture.TriggerNone {
		return
	}
	l.deps.Log.Info("button trigger", zap.Stringer("trigger", trigger))
	l.deps.Status.SetLastTrigger(trigger.String(), now)

	switch trigger {
	case gesture.TriggerFactoryReset:
		l.publishEvent(telemetry.Event{Timestamp: now, Type: telemetry.EventFactoryReset})
		l.beginConfirm(now)
	case gesture.TriggerLearn:
		l.publishEvent(telemetry.Event{Timestamp: now, Type: telemetry.EventLearnStart})
		l.beginLearn(now)
	case gesture.TriggerWifiToggle:
		l.publishEvent(telemetry.Event{Timestamp: now, Type: telemetry.EventWifiToggle})
		if l.deps.Portal.Active() {
			l.networkOff(now)
		} else {
			l.networkOn(now)
		}
	}
}

// beginLearn opens the learning window. A trigger during an open window
// restarts it.
func (l *Loop) beginLearn(now time.Time) {
	l.learning = true
	l.learnStartedAt = now
	l.learnDuration = l.deps.Store.LearnDuration()
	l.deps.Presence.SetLearning(true)
	l.deps.Status.SetLearning(true)
	l.deps.Leds.Demand(LedLearn, callerLearn, true)
	l.deps.Log.Info("learning window open", zap.Duration("window", l.learnDuration))
}

// beginConfirm starts the factory-reset confirmation display. Locking both
// LEDs keeps lower-ranked feedback dark for the whole display.
func (l *Loop) beginConfirm(now time.Time) {
	l.confirming = true
	l.confirmStartedAt = now
	l.deps.Leds.Lock(LedLearn, callerFactory)
	l.deps.Leds.Lock(LedClose, callerFactory)
}

// confirmTick runs the confirmation display and, once it has run its course,
// performs the wipe. Everything else stays frozen until the process restarts.
func (l *Loop) confirmTick(now time.Time) error {
	elapsed := now.Sub(l.confirmStartedAt)
	if elapsed < confirmDuration {
		level := led.Flash(elapsed, confirmCadence)
		l.deps.Leds.Demand(LedLearn, callerFactory, level)
		l.deps.Leds.Demand(LedClose, callerFactory, !level)
		return nil
	}

	l.deps.Log.Warn("factory reset confirmed, wiping settings")
	if l.deps.Portal.Active() {
		if err := l.deps.Portal.Disable(); err != nil {
			l.deps.Log.Warn("portal disable during factory reset", zap.Error(err))
		}
	}
	if err := l.deps.Store.FactoryDefault(); err != nil {
		l.deps.Log.Error("factory reset persist failed", zap.Error(err))
	}
	if err := l.deps.Relay.Write(false); err != nil {
		l.deps.Log.Error("relay off during factory reset", zap.Error(err))
	}
	return ErrRestartRequested
}

// networkOn hands the radio to the portal and brings it up. A failed portal
// leaves scanning running as before.
func (l *Loop) networkOn(now time.Time) {
	l.deps.Scans.Suspend(now)
	if err := l.deps.Portal.Enable(); err != nil {
		l.deps.Log.Error("portal enable failed", zap.Error(err))
		l.deps.Scans.Resume(now)
		return
	}
	l.networkOnAt = now
	l.deps.Status.SetNetworkActive(true)
	l.publishEvent(telemetry.Event{Timestamp: now, Type: telemetry.EventNetworkOn})
}

// networkOff tears the portal down, resumes scanning and re-applies the
// settings, which the portal session may have changed.
func (l *Loop) networkOff(now time.Time) {
	if err := l.deps.Portal.Disable(); err != nil {
		l.deps.Log.Warn("portal disable failed", zap.Error(err))
	}
	l.deps.Scans.Resume(now)
	l.deps.Leds.ClearOff(LedClose, callerNetwork)
	l.deps.Status.SetNetworkActive(false)
	l.applySettings()
	l.publishEvent(telemetry.Event{Timestamp: now, Type: telemetry.EventNetworkOff})
}

// updateStatus refreshes the shared snapshot the portal and telemetry read.
func (l *Loop) updateStatus() {
	sightings := l.deps.Presence.Snapshot()
	devices := make([]status.Device, len(sightings))
	for i, s := range sightings {
		devices[i] = status.Device{ID: s.ID, RSSI: s.RSSI, LastSeenAt: s.LastSeenAt}
	}
	l.deps.Status.Update(l.relayLevel, devices, l.deps.Scans.WatchdogExpirations())
	if l.deps.Connection != nil {
		l.deps.Status.SetMQTTConnected(l.deps.Connection.IsConnected())
	}
}

// heartbeatTick publishes the periodic heartbeat once per interval.
func (l *Loop) heartbeatTick(now time.Time) {
	if l.deps.Heartbeat <= 0 || now.Sub(l.lastHeartbeatAt) < l.deps.Heartbeat {
		return
	}
	l.lastHeartbeatAt = now
	if err := l.deps.Telemetry.PublishSystem(telemetry.NewHeartbeatEvent(l.deps.Status.Snapshot())); err != nil {
		l.deps.Log.Warn("publish heartbeat", zap.Error(err))
	}
}

func (l *Loop) publishEvent(event telemetry.Event) {
	if err := l.deps.Telemetry.PublishEvent(event); err != nil {
		l.deps.Log.Warn("publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
