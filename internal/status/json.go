package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	DeviceID            string       `json:"device_id"`
	Relay               string       `json:"relay"`
	Paired              string       `json:"paired,omitempty"`
	Learning            bool         `json:"learning"`
	NetworkActive       bool         `json:"network_active"`
	UptimeSeconds       int64        `json:"uptime_seconds"`
	StartTime           string       `json:"start_time"`
	Timestamp           string       `json:"timestamp"`
	Startups            int          `json:"startups"`
	LastTrigger         string       `json:"last_trigger,omitempty"`
	LastTriggerAt       string       `json:"last_trigger_at,omitempty"`
	WatchdogExpirations int          `json:"watchdog_expirations"`
	Devices             []DeviceJSON `json:"devices"`
	MQTT                MQTTStatus   `json:"mqtt"`
	Config              ConfigJSON   `json:"config"`
}

// DeviceJSON is the JSON representation of one sighted beacon.
type DeviceJSON struct {
	ID       string `json:"id"`
	RSSI     int    `json:"rssi"`
	LastSeen string `json:"last_seen"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs       int64  `json:"tick_ms"`
	ScanWindowMs int64  `json:"scan_window_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker,omitempty"`
	ListenAddr   string `json:"listen_addr"`
	SettingsPath string `json:"settings_path"`
}

// RelayString renders a relay level as ON or OFF.
func RelayString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	devices := make([]DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, DeviceJSON{
			ID:       d.ID,
			RSSI:     d.RSSI,
			LastSeen: d.LastSeenAt.UTC().Format(time.RFC3339),
		})
	}

	inner := StatusInner{
		DeviceID:            snap.DeviceID,
		Relay:               RelayString(snap.RelayOn),
		Paired:              snap.Paired,
		Learning:            snap.Learning,
		NetworkActive:       snap.NetworkActive,
		UptimeSeconds:       int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:           snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:           snap.Now.UTC().Format(time.RFC3339),
		Startups:            snap.Startups,
		LastTrigger:         snap.LastTrigger,
		WatchdogExpirations: snap.WatchdogExpirations,
		Devices:             devices,
		MQTT:                MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:       snap.Config.TickMs,
			ScanWindowMs: snap.Config.ScanWindowMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			ListenAddr:   snap.Config.ListenAddr,
			SettingsPath: snap.Config.SettingsPath,
		},
	}
	if !snap.LastTriggerAt.IsZero() {
		inner.LastTriggerAt = snap.LastTriggerAt.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the portal's status endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
