// Package ident derives the device identity from its hardware address.
package ident

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// DeviceID returns the six-character device id for a MAC address: the last
// six hex digits of MD5 over the canonical colon-separated uppercase form.
// The id is stable across boots and printable on the enclosure.
func DeviceID(mac string) string {
	canonical := strings.ToUpper(strings.TrimSpace(mac))
	sum := md5.Sum([]byte(canonical))
	digest := hex.EncodeToString(sum[:])
	return strings.ToUpper(digest[len(digest)-6:])
}

// SSID returns the configuration network name for a device id.
func SSID(deviceID string) string {
	return "ProxiSwitch_" + deviceID
}

// Hostname returns the network hostname for a device id.
func Hostname(deviceID string) string {
	return "PxiSw_" + deviceID
}
