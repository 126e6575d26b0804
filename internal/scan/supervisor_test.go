package scan

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/proxiswitch/internal/presence"
	"github.com/sweeney/proxiswitch/internal/radio"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

const window = 5 * time.Second

// setupSupervisor wires a supervisor to a scripted driver and an open
// tracker. The injected clock always reads t0; sighting timestamps are not
// under test here unless stated.
func setupSupervisor(t *testing.T, driver *radio.FakeDriver) (*Supervisor, *presence.Tracker) {
	t.Helper()
	tracker := presence.NewTracker(-80, 60*time.Second)
	sup := NewSupervisor(driver, tracker, window, func() time.Time { return t0 }, zap.NewNop())
	return sup, tracker
}

func TestFirstTickStartsScan(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)

	if driver.StartCalls != 1 {
		t.Errorf("StartCalls: got %d, want 1", driver.StartCalls)
	}
	if !sup.Scanning() {
		t.Error("expected supervisor in scanning phase")
	}
}

func TestResultsReachTracker(t *testing.T) {
	driver := radio.NewFakeDriver([]radio.Advertisement{
		{ID: "AA:BB:CC:11:22:33", RSSI: -55},
		{ID: "DD:EE:FF:44:55:66", RSSI: -70},
	})
	sup, tracker := setupSupervisor(t, driver)

	sup.Tick(t0)

	if !tracker.IsPresent("AA:BB:CC:11:22:33") || !tracker.IsPresent("DD:EE:FF:44:55:66") {
		t.Error("expected both advertisements recorded")
	}
}

func TestFilteredResultsNotRecorded(t *testing.T) {
	driver := radio.NewFakeDriver([]radio.Advertisement{
		{ID: "AA:BB:CC:11:22:33", RSSI: -90},
	})
	sup, tracker := setupSupervisor(t, driver)

	sup.Tick(t0)

	if tracker.Len() != 0 {
		t.Error("weak sighting should have been filtered")
	}
}

func TestCompletedScanRestarts(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	driver.CompleteScan()
	sup.Tick(t0.Add(window))

	if driver.StartCalls != 2 {
		t.Errorf("StartCalls: got %d, want 2", driver.StartCalls)
	}
	if !sup.Scanning() {
		t.Error("expected a fresh window after completion")
	}
}

func TestWatchdogBoundary(t *testing.T) {
	// Ceiling is three windows: 15s for a 5s window. At exactly 15s the
	// scan is left alone; one millisecond past, it is restarted.
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	sup.Tick(t0.Add(15 * time.Second))

	if sup.WatchdogExpirations() != 0 {
		t.Fatalf("expirations at the ceiling: got %d, want 0", sup.WatchdogExpirations())
	}
	if driver.StartCalls != 1 {
		t.Fatalf("StartCalls at the ceiling: got %d, want 1", driver.StartCalls)
	}

	sup.Tick(t0.Add(15*time.Second + time.Millisecond))

	if sup.WatchdogExpirations() != 1 {
		t.Errorf("expirations past the ceiling: got %d, want 1", sup.WatchdogExpirations())
	}
	if driver.StopCalls != 1 {
		t.Errorf("StopCalls: got %d, want 1", driver.StopCalls)
	}
	if driver.ClearCalls != 1 {
		t.Errorf("ClearCalls: got %d, want 1", driver.ClearCalls)
	}
	if driver.StartCalls != 2 {
		t.Errorf("StartCalls: got %d, want 2", driver.StartCalls)
	}
}

func TestWatchdogCountsOncePerExpiry(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	expiry1 := t0.Add(15*time.Second + time.Millisecond)
	sup.Tick(expiry1)
	if sup.WatchdogExpirations() != 1 {
		t.Fatalf("after first expiry: got %d, want 1", sup.WatchdogExpirations())
	}

	// The restarted window gets its own full ceiling.
	sup.Tick(expiry1.Add(15 * time.Second))
	if sup.WatchdogExpirations() != 1 {
		t.Errorf("within the second window's ceiling: got %d, want 1", sup.WatchdogExpirations())
	}

	sup.Tick(expiry1.Add(15*time.Second + time.Millisecond))
	if sup.WatchdogExpirations() != 2 {
		t.Errorf("after second expiry: got %d, want 2", sup.WatchdogExpirations())
	}
}

func TestTickPurgesStaleSightings(t *testing.T) {
	// One sighting in the first window, silence afterwards.
	driver := radio.NewFakeDriver(
		[]radio.Advertisement{{ID: "AA:BB:CC:11:22:33", RSSI: -55}},
		nil,
	)
	driver.HoldOpen = true
	sup, tracker := setupSupervisor(t, driver)

	sup.Tick(t0)
	if !tracker.IsPresent("AA:BB:CC:11:22:33") {
		t.Fatal("expected sighting recorded")
	}

	sup.Tick(t0.Add(61 * time.Second))
	if tracker.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("expected stale sighting purged by tick")
	}
}

func TestSuspendStopsScan(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	sup.Suspend(t0.Add(time.Second))

	if driver.StopCalls != 1 {
		t.Errorf("StopCalls: got %d, want 1", driver.StopCalls)
	}
	if driver.ClearCalls != 1 {
		t.Errorf("ClearCalls: got %d, want 1", driver.ClearCalls)
	}
	if !sup.Suspended() {
		t.Error("expected suspended state")
	}
	if sup.Scanning() {
		t.Error("suspend should close the window")
	}
}

func TestSuspendedTicksDoNothing(t *testing.T) {
	driver := radio.NewFakeDriver([]radio.Advertisement{
		{ID: "AA:BB:CC:11:22:33", RSSI: -55},
	})
	driver.HoldOpen = true
	sup, tracker := setupSupervisor(t, driver)

	sup.Tick(t0)
	sup.Suspend(t0.Add(time.Second))
	starts := driver.StartCalls

	// Ticks far past the purge window: no new scans, no purge.
	sup.Tick(t0.Add(5 * time.Minute))
	sup.Tick(t0.Add(6 * time.Minute))

	if driver.StartCalls != starts {
		t.Errorf("suspended ticks must not start scans: got %d starts", driver.StartCalls)
	}
	if !tracker.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("sightings must freeze while suspended")
	}
}

func TestResumeShiftsPurgeWindow(t *testing.T) {
	// One sighting in the first window, silence afterwards.
	driver := radio.NewFakeDriver(
		[]radio.Advertisement{{ID: "AA:BB:CC:11:22:33", RSSI: -55}},
		nil,
	)
	driver.HoldOpen = true
	sup, tracker := setupSupervisor(t, driver)

	// Sighting at t0, suspended from t0+1s for five minutes.
	sup.Tick(t0)
	sup.Suspend(t0.Add(time.Second))
	resumeAt := t0.Add(time.Second + 5*time.Minute)
	sup.Resume(resumeAt)

	// First tick after resume shifts timestamps by the suspended span, so
	// the beacon is still treated as recently seen.
	sup.Tick(resumeAt)
	if !tracker.IsPresent("AA:BB:CC:11:22:33") {
		t.Fatal("sighting should survive the suspension")
	}

	// The shifted record expires on the usual schedule afterwards.
	sup.Tick(resumeAt.Add(61 * time.Second))
	if tracker.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("shifted record should expire after the normal window")
	}
}

func TestResumeRestartsScanning(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	sup.Suspend(t0.Add(time.Second))
	sup.Resume(t0.Add(2 * time.Second))
	sup.Tick(t0.Add(2 * time.Second))

	if driver.StartCalls != 2 {
		t.Errorf("StartCalls: got %d, want 2", driver.StartCalls)
	}
}

func TestSuspendIdempotent(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	sup.Suspend(t0.Add(time.Second))
	sup.Suspend(t0.Add(2 * time.Second))

	if driver.StopCalls != 1 {
		t.Errorf("double suspend should stop once, got %d", driver.StopCalls)
	}

	// Resume pairs with the first suspend.
	sup.Resume(t0.Add(3 * time.Second))
	sup.Resume(t0.Add(4 * time.Second))
	if sup.Suspended() {
		t.Error("expected resumed state")
	}
}

func TestStartErrorRetriedNextTick(t *testing.T) {
	driver := radio.NewFakeDriver()
	driver.HoldOpen = true
	driver.StartError = errors.New("adapter busy")
	sup, _ := setupSupervisor(t, driver)

	sup.Tick(t0)
	if sup.Scanning() {
		t.Fatal("failed start should leave the supervisor idle")
	}

	driver.StartError = nil
	sup.Tick(t0.Add(50 * time.Millisecond))
	if !sup.Scanning() {
		t.Error("expected scan started once the driver recovered")
	}
}

func TestSightingsStampedWithClock(t *testing.T) {
	driver := radio.NewFakeDriver([]radio.Advertisement{
		{ID: "AA:BB:CC:11:22:33", RSSI: -55},
	})
	tracker := presence.NewTracker(-80, 60*time.Second)
	stamp := t0.Add(42 * time.Second)
	sup := NewSupervisor(driver, tracker, window, func() time.Time { return stamp }, zap.NewNop())

	sup.Tick(t0)

	snap := tracker.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 sighting, got %d", len(snap))
	}
	if !snap[0].LastSeenAt.Equal(stamp) {
		t.Errorf("timestamp: got %v, want %v", snap[0].LastSeenAt, stamp)
	}
}
