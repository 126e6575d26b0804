// Package radio abstracts the BLE advertisement scanner.
//
// A scan window is asynchronous: Start returns immediately and results
// arrive on the driver's own goroutine until the window closes. Callers
// observe completion by polling Busy; there is no completion callback.
package radio

import "time"

// ResultFunc receives one advertisement: the beacon id (its address in
// colon form) and the signal strength in dBm.
type ResultFunc func(id string, rssi int)

// Driver runs time-boxed BLE scans.
type Driver interface {
	// Start opens a scan window. onResult may fire zero or more times from
	// another goroutine until the window closes or Stop is called.
	Start(window time.Duration, onResult ResultFunc) error

	// Stop ends the current window early. Safe to call when idle.
	Stop() error

	// ClearResults discards anything still queued from the current window.
	ClearResults()

	// Busy reports whether a window is still open.
	Busy() bool
}
