package radio

import (
	"sync"
	"time"
)

// Advertisement is one scripted scan result.
type Advertisement struct {
	ID   string
	RSSI int
}

// FakeDriver is a scripted radio for tests and demo mode. Each Start
// delivers the next batch of advertisements synchronously through onResult;
// once the batches run out, the last batch repeats. An empty script
// delivers nothing.
type FakeDriver struct {
	mu sync.Mutex

	// Batches holds the advertisement batches consumed by successive Starts.
	Batches [][]Advertisement

	// HoldOpen keeps the driver busy after delivering a batch until
	// CompleteScan or Stop. When false a scan completes immediately.
	HoldOpen bool

	// StartError, if set, will be returned by Start.
	StartError error

	// Call counters for assertions.
	StartCalls int
	StopCalls  int
	ClearCalls int

	busy  bool
	index int
}

// NewFakeDriver returns a driver scripted with the given batches.
func NewFakeDriver(batches ...[]Advertisement) *FakeDriver {
	return &FakeDriver{Batches: batches}
}

// Start consumes the next batch. The window duration is ignored; fake scans
// complete instantly unless HoldOpen is set.
func (f *FakeDriver) Start(window time.Duration, onResult ResultFunc) error {
	f.mu.Lock()
	if f.StartError != nil {
		err := f.StartError
		f.mu.Unlock()
		return err
	}
	f.StartCalls++
	batch := f.nextBatch()
	f.busy = f.HoldOpen
	f.mu.Unlock()

	for _, adv := range batch {
		onResult(adv.ID, adv.RSSI)
	}
	return nil
}

// nextBatch must be called with mu held.
func (f *FakeDriver) nextBatch() []Advertisement {
	if len(f.Batches) == 0 {
		return nil
	}
	batch := f.Batches[f.index]
	if f.index < len(f.Batches)-1 {
		f.index++
	}
	return batch
}

// Stop ends the current window.
func (f *FakeDriver) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	f.busy = false
	return nil
}

// ClearResults records the call; scripted batches are already delivered.
func (f *FakeDriver) ClearResults() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClearCalls++
}

// Busy reports whether a held-open scan is still running.
func (f *FakeDriver) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// CompleteScan finishes a held-open scan without counting a Stop.
func (f *FakeDriver) CompleteScan() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
}

// Reset restores the script to the beginning and clears all counters.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.busy = false
	f.StartCalls = 0
	f.StopCalls = 0
	f.ClearCalls = 0
	f.StartError = nil
}

// Compile-time interface checks.
var (
	_ Driver = (*BLEDriver)(nil)
	_ Driver = (*FakeDriver)(nil)
)
