package radio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// BLEDriver scans for advertisements with the platform BLE adapter.
//
// bluetooth.Adapter.Scan blocks until StopScan, so each window runs on its
// own goroutine with a watcher closing the window after the duration
// elapses. Advertisements are delivered as they arrive; nothing is queued,
// so ClearResults has nothing to discard.
type BLEDriver struct {
	adapter *bluetooth.Adapter
	log     *zap.Logger

	mu      sync.Mutex
	enabled bool
	busy    bool
	stop    chan struct{}
}

// NewBLEDriver returns a driver for the default adapter. The adapter is
// enabled lazily on the first Start.
func NewBLEDriver(log *zap.Logger) *BLEDriver {
	return &BLEDriver{adapter: bluetooth.DefaultAdapter, log: log}
}

// Start opens a scan window. Returns an error while a previous window is
// still draining; the caller retries on its next tick.
func (d *BLEDriver) Start(window time.Duration, onResult ResultFunc) error {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}
	if !d.enabled {
		if err := d.adapter.Enable(); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("enable bluetooth adapter: %w", err)
		}
		d.enabled = true
	}
	stop := make(chan struct{})
	d.stop = stop
	d.busy = true
	d.mu.Unlock()

	go func() {
		select {
		case <-stop:
		case <-time.After(window):
		}
		// Unblocks Scan below. An error here only means the scan had
		// already ended.
		d.adapter.StopScan()
	}()

	go func() {
		if err := d.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			onResult(result.Address.String(), int(result.RSSI))
		}); err != nil {
			d.log.Warn("ble scan ended with error", zap.Error(err))
		}
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	return nil
}

// Stop closes the current window early. Idempotent.
func (d *BLEDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	return nil
}

// ClearResults is a no-op: the adapter pushes advertisements immediately.
func (d *BLEDriver) ClearResults() {}

// Busy reports whether a scan window is still open or draining.
func (d *BLEDriver) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}
