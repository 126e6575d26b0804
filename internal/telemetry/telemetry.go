// Package telemetry provides MQTT publishing with abstraction for testing.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/sweeney/proxiswitch/internal/status"
)

const topicPrefix = "proxiswitch"

// TopicEvents returns the MQTT topic for outlet events.
func TopicEvents(deviceID string) string {
	return topicPrefix + "/" + deviceID + "/events"
}

// TopicSystem returns the MQTT topic for system lifecycle events.
func TopicSystem(deviceID string) string {
	return topicPrefix + "/" + deviceID + "/system"
}

// EventType identifies an outlet event.
type EventType string

const (
	EventRelayOn       EventType = "RELAY_ON"
	EventRelayOff      EventType = "RELAY_OFF"
	EventWifiToggle    EventType = "WIFI_TOGGLE"
	EventLearnStart    EventType = "LEARN_START"
	EventLearnComplete EventType = "LEARN_COMPLETE"
	EventFactoryReset  EventType = "FACTORY_RESET"
	EventNetworkOn     EventType = "NETWORK_ON"
	EventNetworkOff    EventType = "NETWORK_OFF"
)

// Event represents an outlet state change or button gesture outcome.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Device    string // beacon id for relay and learn events, empty otherwise
	RSSI      int    // signal strength for relay events, 0 when not applicable
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishEvent sends an outlet event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishEvent(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp time.Time
	Event     string         // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason    string         // e.g., "SIGTERM", "FACTORY_RESET" (shutdown only)
	Config    *SystemConfig  // startup only
	Heartbeat *HeartbeatInfo // heartbeat only
	Retained  bool           // whether the message should be retained by the broker
}

// SystemConfig is the configuration block attached to STARTUP events.
type SystemConfig struct {
	TickMs       int64  `json:"tick_ms"`
	ScanWindowMs int64  `json:"scan_window_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
}

// HeartbeatInfo is the status block attached to HEARTBEAT events.
type HeartbeatInfo struct {
	UptimeSeconds       int64  `json:"uptime_seconds"`
	Relay               string `json:"relay"`
	Paired              string `json:"paired,omitempty"`
	DevicesSeen         int    `json:"devices_seen"`
	Startups            int    `json:"startups"`
	WatchdogExpirations int    `json:"watchdog_expirations"`
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Outlet OutletPayload `json:"outlet"`
}

// OutletPayload contains the outlet event details.
type OutletPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Device    string `json:"device,omitempty"`
	RSSI      int    `json:"rssi,omitempty"`
}

// FormatPayload creates the JSON payload for an outlet event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Outlet: OutletPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Device:    event.Device,
			RSSI:      event.RSSI,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Config    *SystemConfig  `json:"config,omitempty"`
	Heartbeat *HeartbeatInfo `json:"heartbeat,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
			Heartbeat: event.Heartbeat,
		},
	}
	return json.Marshal(payload)
}

// NewStartupEvent builds a retained STARTUP system event from a status snapshot.
func NewStartupEvent(snap status.Snapshot) SystemEvent {
	return SystemEvent{
		Timestamp: snap.Now,
		Event:     "STARTUP",
		Config: &SystemConfig{
			TickMs:       snap.Config.TickMs,
			ScanWindowMs: snap.Config.ScanWindowMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
		},
		Retained: true,
	}
}

// NewHeartbeatEvent builds a HEARTBEAT system event from a status snapshot.
func NewHeartbeatEvent(snap status.Snapshot) SystemEvent {
	return SystemEvent{
		Timestamp: snap.Now,
		Event:     "HEARTBEAT",
		Heartbeat: &HeartbeatInfo{
			UptimeSeconds:       int64(snap.Uptime().Truncate(time.Second).Seconds()),
			Relay:               status.RelayString(snap.RelayOn),
			Paired:              snap.Paired,
			DevicesSeen:         len(snap.Devices),
			Startups:            snap.Startups,
			WatchdogExpirations: snap.WatchdogExpirations,
		},
	}
}

// NewShutdownEvent builds a retained SHUTDOWN system event. Retention makes
// the broker's last system message reflect that the device is down until the
// next STARTUP overwrites it.
func NewShutdownEvent(now time.Time, reason string) SystemEvent {
	return SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
}
