// Package presence tracks sighted beacons and decides who is nearby.
//
// The tracker is the only core component touched from outside the control
// tick: the radio driver delivers advertisements on its own goroutine. All
// table access is therefore guarded by a short-held mutex. Time is always
// injected as a parameter so tests never sleep.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Target identifies the beacon the outlet is paired to.
// The zero value means unpaired: track everything, switch nothing.
type Target struct {
	ID    string
	Valid bool
}

// TargetOf returns a valid Target for the given beacon id.
func TargetOf(id string) Target { return Target{ID: id, Valid: true} }

// Matches reports whether the target is set and equals id.
func (t Target) Matches(id string) bool { return t.Valid && t.ID == id }

// sighting pairs the last-seen timestamp with the signal strength for one
// beacon. The two always travel together: one map entry, inserted and
// removed as a unit, so readers never observe a timestamp without its RSSI.
type sighting struct {
	lastSeenAt time.Time
	rssi       int
}

// Sighting is a point-in-time copy of one beacon record for display.
type Sighting struct {
	ID         string
	RSSI       int
	LastSeenAt time.Time
}

// Tracker owns the sighting table.
type Tracker struct {
	mu            sync.Mutex
	records       map[string]sighting
	nearThreshold int           // sightings at or below this RSSI are dropped
	maxNotSeen    time.Duration // records older than this are purged
	target        Target
	learning      bool
}

// NewTracker creates an empty tracker. Sightings with RSSI at or below
// nearThreshold are ignored; records unseen for longer than maxNotSeen are
// removed by Purge.
func NewTracker(nearThreshold int, maxNotSeen time.Duration) *Tracker {
	return &Tracker{
		records:       make(map[string]sighting),
		nearThreshold: nearThreshold,
		maxNotSeen:    maxNotSeen,
	}
}

// RecordSighting inserts or refreshes the record for id. A sighting is kept
// only when its RSSI is strictly above the near threshold and either the
// outlet is unpaired, a learning window is open, or id is the pairing
// target. Returns false when the sighting was filtered out.
//
// Safe to call from the radio driver's goroutine.
func (t *Tracker) RecordSighting(id string, rssi int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rssi <= t.nearThreshold {
		return false
	}
	if t.target.Valid && !t.learning && t.target.ID != id {
		return false
	}
	t.records[id] = sighting{lastSeenAt: now, rssi: rssi}
	return true
}

// Purge removes records not seen within the configured window. A positive
// suspendedElapsed means the radio was off for that long: every record's
// timestamp shifts forward by that amount instead, and nothing is removed,
// so the gap is not misread as absence. Expiry resumes on the next call
// with suspendedElapsed zero.
func (t *Tracker) Purge(now time.Time, suspendedElapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if suspendedElapsed > 0 {
		for id, rec := range t.records {
			rec.lastSeenAt = rec.lastSeenAt.Add(suspendedElapsed)
			t.records[id] = rec
		}
		return
	}

	for id, rec := range t.records {
		if now.Sub(rec.lastSeenAt) > t.maxNotSeen {
			delete(t.records, id)
		}
	}
}

// NearestDevice returns the id with the strongest RSSI. Ties resolve to the
// lexicographically smallest id so repeated calls over the same table agree;
// this decides pairing outcomes. The second return is false when the table
// is empty.
func (t *Tracker) NearestDevice() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best string
	var bestRSSI int
	found := false
	for id, rec := range t.records {
		if !found || rec.rssi > bestRSSI || (rec.rssi == bestRSSI && id < best) {
			best, bestRSSI, found = id, rec.rssi, true
		}
	}
	return best, found
}

// IsPresent reports whether id currently has a record.
func (t *Tracker) IsPresent(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[id]
	return ok
}

// AnyAtLeast reports whether any current record has RSSI at or above
// threshold. Drives the close-proximity indicator.
func (t *Tracker) AnyAtLeast(threshold int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.records {
		if rec.rssi >= threshold {
			return true
		}
	}
	return false
}

// SetTarget installs the pairing target used by the sighting filter.
func (t *Tracker) SetTarget(target Target) {
	t.mu.Lock()
	t.target = target
	t.mu.Unlock()
}

// Target returns the current pairing target.
func (t *Tracker) Target() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// SetLearning opens or closes the learning window. While open, the sighting
// filter accepts every beacon above the near threshold.
func (t *Tracker) SetLearning(learning bool) {
	t.mu.Lock()
	t.learning = learning
	t.mu.Unlock()
}

// SetNearThreshold replaces the RSSI floor for new sightings.
func (t *Tracker) SetNearThreshold(threshold int) {
	t.mu.Lock()
	t.nearThreshold = threshold
	t.mu.Unlock()
}

// SetMaxNotSeen replaces the purge window.
func (t *Tracker) SetMaxNotSeen(window time.Duration) {
	t.mu.Lock()
	t.maxNotSeen = window
	t.mu.Unlock()
}

// Len returns the number of tracked beacons.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Snapshot returns a copy of the table sorted by descending RSSI, ties by
// ascending id. For display and telemetry.
func (t *Tracker) Snapshot() []Sighting {
	t.mu.Lock()
	out := make([]Sighting, 0, len(t.records))
	for id, rec := range t.records {
		out = append(out, Sighting{ID: id, RSSI: rec.rssi, LastSeenAt: rec.lastSeenAt})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].ID < out[j].ID
	})
	return out
}
