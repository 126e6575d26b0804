package presence

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newOpenTracker() *Tracker {
	return NewTracker(-80, 60*time.Second)
}

func TestRecordSightingStored(t *testing.T) {
	tr := newOpenTracker()

	if !tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0) {
		t.Fatal("expected sighting to be recorded")
	}
	if !tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("expected beacon to be present")
	}
	if tr.Len() != 1 {
		t.Errorf("len: got %d, want 1", tr.Len())
	}
}

func TestRecordSightingRejectsWeakSignal(t *testing.T) {
	tr := newOpenTracker()

	// At the threshold is too weak; only strictly above passes.
	if tr.RecordSighting("AA:BB:CC:11:22:33", -80, t0) {
		t.Error("RSSI equal to threshold should be rejected")
	}
	if tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("rejected sighting should not be present")
	}

	if !tr.RecordSighting("AA:BB:CC:11:22:33", -79, t0) {
		t.Error("RSSI one above threshold should be accepted")
	}
}

func TestRecordSightingFiltersNonTargetWhenPaired(t *testing.T) {
	tr := newOpenTracker()
	tr.SetTarget(TargetOf("AA:BB:CC:11:22:33"))

	if tr.RecordSighting("DD:EE:FF:44:55:66", -50, t0) {
		t.Error("non-target sighting should be rejected while paired")
	}
	if !tr.RecordSighting("AA:BB:CC:11:22:33", -50, t0) {
		t.Error("target sighting should be accepted while paired")
	}
	if tr.Len() != 1 {
		t.Errorf("len: got %d, want 1", tr.Len())
	}
}

func TestRecordSightingAcceptsAllWhileLearning(t *testing.T) {
	tr := newOpenTracker()
	tr.SetTarget(TargetOf("AA:BB:CC:11:22:33"))
	tr.SetLearning(true)

	if !tr.RecordSighting("DD:EE:FF:44:55:66", -50, t0) {
		t.Error("any beacon should be accepted during a learning window")
	}

	tr.SetLearning(false)
	if tr.RecordSighting("11:22:33:44:55:66", -50, t0) {
		t.Error("filter should apply again once learning ends")
	}
}

func TestRecordSightingOpenWhenUnpaired(t *testing.T) {
	tr := newOpenTracker()

	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)
	tr.RecordSighting("DD:EE:FF:44:55:66", -70, t0)

	if tr.Len() != 2 {
		t.Errorf("len: got %d, want 2", tr.Len())
	}
}

func TestRecordSightingRefreshesExisting(t *testing.T) {
	tr := newOpenTracker()

	tr.RecordSighting("AA:BB:CC:11:22:33", -70, t0)
	tr.RecordSighting("AA:BB:CC:11:22:33", -55, t0.Add(time.Second))

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snap))
	}
	if snap[0].RSSI != -55 {
		t.Errorf("RSSI: got %d, want -55", snap[0].RSSI)
	}
	if !snap[0].LastSeenAt.Equal(t0.Add(time.Second)) {
		t.Errorf("last seen: got %v, want %v", snap[0].LastSeenAt, t0.Add(time.Second))
	}
}

func TestPurgeRemovesStaleRecords(t *testing.T) {
	maxNotSeen := 60 * time.Second
	tr := NewTracker(-80, maxNotSeen)
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	// Exactly at the window the record survives; one past it, it goes.
	tr.Purge(t0.Add(maxNotSeen), 0)
	if !tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Fatal("record at exactly maxNotSeen should survive")
	}

	tr.Purge(t0.Add(maxNotSeen+time.Millisecond), 0)
	if tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("record older than maxNotSeen should be purged")
	}
}

func TestPurgeLeavesFreshRecords(t *testing.T) {
	tr := NewTracker(-80, 60*time.Second)
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)
	tr.RecordSighting("DD:EE:FF:44:55:66", -60, t0.Add(45*time.Second))

	tr.Purge(t0.Add(70*time.Second), 0)

	if tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("stale record should be purged")
	}
	if !tr.IsPresent("DD:EE:FF:44:55:66") {
		t.Error("fresh record should survive")
	}
}

func TestPurgeShiftsTimestampsAfterSuspension(t *testing.T) {
	maxNotSeen := 60 * time.Second
	tr := NewTracker(-80, maxNotSeen)
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	// The radio was off for one second: the record shifts instead of
	// expiring, and no eviction happens on this call.
	tr.Purge(t0.Add(time.Millisecond), time.Second)
	if !tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Fatal("record should survive a suspension shift")
	}

	// After the shift the record behaves as if last seen at t0+1s.
	tr.Purge(t0.Add(maxNotSeen+time.Second), 0)
	if !tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Fatal("shifted record should survive until the shifted deadline")
	}

	tr.Purge(t0.Add(maxNotSeen+time.Second+time.Millisecond), 0)
	if tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("shifted record should expire past the shifted deadline")
	}
}

func TestPurgeShiftSkipsEviction(t *testing.T) {
	tr := NewTracker(-80, 60*time.Second)
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	// Even far past the window, a shift call must not evict.
	tr.Purge(t0.Add(10*time.Minute), 5*time.Minute)
	if !tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("shift call must never evict records")
	}
}

func TestNearestDeviceStrongestWins(t *testing.T) {
	tr := newOpenTracker()
	tr.RecordSighting("AA:BB:CC:11:22:33", -70, t0)
	tr.RecordSighting("DD:EE:FF:44:55:66", -50, t0)
	tr.RecordSighting("11:22:33:44:55:66", -60, t0)

	id, ok := tr.NearestDevice()
	if !ok {
		t.Fatal("expected a nearest device")
	}
	if id != "DD:EE:FF:44:55:66" {
		t.Errorf("nearest: got %s, want DD:EE:FF:44:55:66", id)
	}
}

func TestNearestDeviceTieBreaksOnID(t *testing.T) {
	tr := newOpenTracker()
	tr.RecordSighting("BB:00:00:00:00:01", -50, t0)
	tr.RecordSighting("AA:00:00:00:00:02", -50, t0)

	// The answer must be stable across calls despite map iteration order.
	for i := 0; i < 50; i++ {
		id, ok := tr.NearestDevice()
		if !ok {
			t.Fatal("expected a nearest device")
		}
		if id != "AA:00:00:00:00:02" {
			t.Fatalf("call %d: got %s, want AA:00:00:00:00:02", i, id)
		}
	}
}

func TestNearestDeviceEmpty(t *testing.T) {
	tr := newOpenTracker()

	if _, ok := tr.NearestDevice(); ok {
		t.Error("empty table should report no nearest device")
	}
}

func TestAnyAtLeast(t *testing.T) {
	tr := newOpenTracker()
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	if tr.AnyAtLeast(-50) {
		t.Error("-60 should not satisfy a -50 floor")
	}
	if !tr.AnyAtLeast(-60) {
		t.Error("-60 should satisfy a -60 floor")
	}
	if !tr.AnyAtLeast(-70) {
		t.Error("-60 should satisfy a -70 floor")
	}
}

func TestAnyAtLeastEmpty(t *testing.T) {
	tr := newOpenTracker()
	if tr.AnyAtLeast(-100) {
		t.Error("empty table should never satisfy AnyAtLeast")
	}
}

func TestSetNearThresholdAppliesToNewSightings(t *testing.T) {
	tr := newOpenTracker()
	tr.SetNearThreshold(-40)

	if tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0) {
		t.Error("sighting below the raised threshold should be rejected")
	}
	if !tr.RecordSighting("AA:BB:CC:11:22:33", -39, t0) {
		t.Error("sighting above the raised threshold should be accepted")
	}
}

func TestSetMaxNotSeenAppliesToNextPurge(t *testing.T) {
	tr := NewTracker(-80, 60*time.Second)
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	tr.SetMaxNotSeen(5 * time.Second)
	tr.Purge(t0.Add(10*time.Second), 0)

	if tr.IsPresent("AA:BB:CC:11:22:33") {
		t.Error("record should expire under the shortened window")
	}
}

func TestSnapshotSortedByStrength(t *testing.T) {
	tr := newOpenTracker()
	tr.RecordSighting("CC:00:00:00:00:03", -70, t0)
	tr.RecordSighting("AA:00:00:00:00:01", -50, t0)
	tr.RecordSighting("BB:00:00:00:00:02", -50, t0)

	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	want := []string{"AA:00:00:00:00:01", "BB:00:00:00:00:02", "CC:00:00:00:00:03"}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("snapshot[%d]: got %s, want %s", i, snap[i].ID, id)
		}
	}
}

func TestSnapshotEntriesComplete(t *testing.T) {
	tr := newOpenTracker()
	tr.RecordSighting("AA:BB:CC:11:22:33", -60, t0)

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snap))
	}
	// Timestamp and RSSI belong to the same sighting, always.
	if snap[0].RSSI != -60 || !snap[0].LastSeenAt.Equal(t0) {
		t.Errorf("snapshot entry incomplete: %+v", snap[0])
	}
}

func TestTargetAccessors(t *testing.T) {
	tr := newOpenTracker()

	if tr.Target().Valid {
		t.Error("new tracker should be unpaired")
	}

	tr.SetTarget(TargetOf("AA:BB:CC:11:22:33"))
	got := tr.Target()
	if !got.Valid || got.ID != "AA:BB:CC:11:22:33" {
		t.Errorf("target: got %+v", got)
	}
	if !got.Matches("AA:BB:CC:11:22:33") {
		t.Error("target should match its own id")
	}
	if got.Matches("DD:EE:FF:44:55:66") {
		t.Error("target should not match another id")
	}

	tr.SetTarget(Target{})
	if tr.Target().Valid {
		t.Error("cleared target should be invalid")
	}
}

func TestZeroTargetMatchesNothing(t *testing.T) {
	var target Target
	if target.Matches("") {
		t.Error("zero target must not match the empty id")
	}
	if target.Matches("AA:BB:CC:11:22:33") {
		t.Error("zero target must not match any id")
	}
}
