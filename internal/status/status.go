// Package status provides a thread-safe status tracker for the outlet daemon.
// It is read by the portal's HTTP handlers and by telemetry payload builders.
package status

import (
	"sync"
	"time"
)

// Device is one sighted beacon. This is a local copy to avoid
// importing internal/presence from status.
type Device struct {
	ID         string
	RSSI       int
	LastSeenAt time.Time
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs       int64
	ScanWindowMs int64
	HeartbeatMs  int64
	Broker       string
	ListenAddr   string
	SettingsPath string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	DeviceID            string
	StartTime           time.Time
	Now                 time.Time
	Startups            int
	RelayOn             bool
	NetworkActive       bool
	Learning            bool
	Paired              string // empty when unpaired
	Devices             []Device
	WatchdogExpirations int
	LastTrigger         string
	LastTriggerAt       time.Time
	MQTTConnected       bool
	Config              Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given identity, start time and config.
func NewTracker(deviceID string, startTime time.Time, startups int, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			DeviceID:  deviceID,
			StartTime: startTime,
			Startups:  startups,
			Config:    cfg,
		},
	}
}

// Update sets relay state, sighted devices and the watchdog counter.
// Called from the control loop on every tick. The devices slice is
// copied, so the caller may reuse it.
func (t *Tracker) Update(relayOn bool, devices []Device, watchdogExpirations int) {
	t.mu.Lock()
	t.snap.RelayOn = relayOn
	t.snap.Devices = append([]Device(nil), devices...)
	t.snap.WatchdogExpirations = watchdogExpirations
	t.mu.Unlock()
}

// SetNetworkActive records whether the settings portal is up.
func (t *Tracker) SetNetworkActive(active bool) {
	t.mu.Lock()
	t.snap.NetworkActive = active
	t.mu.Unlock()
}

// SetLearning records whether a learn window is open.
func (t *Tracker) SetLearning(learning bool) {
	t.mu.Lock()
	t.snap.Learning = learning
	t.mu.Unlock()
}

// SetPaired records the paired beacon id. Empty means unpaired.
func (t *Tracker) SetPaired(id string) {
	t.mu.Lock()
	t.snap.Paired = id
	t.mu.Unlock()
}

// SetLastTrigger records the most recent button gesture and when it fired.
func (t *Tracker) SetLastTrigger(name string, at time.Time) {
	t.mu.Lock()
	t.snap.LastTrigger = name
	t.snap.LastTriggerAt = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
// Devices is replaced wholesale by Update and never mutated in place,
// so sharing the slice with callers is safe.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
