// Package led arbitrates competing demands for the indicator LEDs.
//
// Several feedback producers want the same two physical outputs at once:
// hold feedback, the learning indicator, the proximity indicator, the
// network flash, the factory-reset confirmation. Each producer expresses a
// demand; once per tick the arbiter resolves every LED to a single level
// and writes it to hardware only when the level changed.
package led

import (
	"fmt"
	"math"
	"time"
)

// Output drives one physical LED line.
type Output interface {
	Write(on bool) error
}

type ledState struct {
	out     Output
	current bool
}

// Arbiter resolves per-LED demands. The caller with the lowest priority
// number wins; equal priorities resolve to the lexicographically smallest
// caller id so the outcome never depends on map order. Not safe for
// concurrent use; the control loop owns it.
type Arbiter struct {
	leds       map[string]*ledState
	priorities map[string]int
	demands    map[string]map[string]bool     // ledID -> callerID -> level
	locks      map[string]map[string]struct{} // ledID -> callers holding an off floor
}

// NewArbiter creates an empty arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{
		leds:       make(map[string]*ledState),
		priorities: make(map[string]int),
		demands:    make(map[string]map[string]bool),
		locks:      make(map[string]map[string]struct{}),
	}
}

// AddLed registers an output under id and drives it off. Registering the
// same id again is ignored.
func (a *Arbiter) AddLed(id string, out Output) error {
	if _, ok := a.leds[id]; ok {
		return nil
	}
	if err := out.Write(false); err != nil {
		return fmt.Errorf("init led %s: %w", id, err)
	}
	a.leds[id] = &ledState{out: out, current: false}
	return nil
}

// SetPriority assigns a caller's arbitration rank. Lower numbers win.
// Callers without a priority rank last.
func (a *Arbiter) SetPriority(callerID string, priority int) {
	a.priorities[callerID] = priority
}

// Demand sets or replaces the caller's demanded level for a LED.
func (a *Arbiter) Demand(ledID, callerID string, on bool) {
	if a.demands[ledID] == nil {
		a.demands[ledID] = make(map[string]bool)
	}
	a.demands[ledID][callerID] = on
}

// Lock marks the caller's off level as a floor: until Unlock, clearing
// their demand leaves an explicit off in place instead of silence. A caller
// with no demand gains an off demand immediately.
func (a *Arbiter) Lock(ledID, callerID string) {
	if a.locks[ledID] == nil {
		a.locks[ledID] = make(map[string]struct{})
	}
	a.locks[ledID][callerID] = struct{}{}
	if _, ok := a.demands[ledID][callerID]; !ok {
		a.Demand(ledID, callerID, false)
	}
}

// Unlock releases the caller's off floor. A held-down off demand left by the
// lock is removed; a genuine on demand stays.
func (a *Arbiter) Unlock(ledID, callerID string) {
	if locks := a.locks[ledID]; locks != nil {
		delete(locks, callerID)
	}
	if demands := a.demands[ledID]; demands != nil {
		if level, ok := demands[callerID]; ok && !level {
			delete(demands, callerID)
		}
	}
}

// ClearOff withdraws the caller's demand for a LED. While the caller holds
// a lock the demand becomes an explicit off instead of disappearing.
func (a *Arbiter) ClearOff(ledID, callerID string) {
	if _, locked := a.locks[ledID][callerID]; locked {
		a.Demand(ledID, callerID, false)
		return
	}
	if demands := a.demands[ledID]; demands != nil {
		delete(demands, callerID)
	}
}

// Tick resolves every registered LED and writes levels that changed. A
// failed write leaves the cached level untouched so the next tick retries.
func (a *Arbiter) Tick() error {
	var firstErr error
	for id, led := range a.leds {
		level := a.resolve(id)
		if level == led.current {
			continue
		}
		if err := led.out.Write(level); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write led %s: %w", id, err)
			}
			continue
		}
		led.current = level
	}
	return firstErr
}

// resolve picks the winning demand for one LED. No demands means off.
func (a *Arbiter) resolve(ledID string) bool {
	var level bool
	var bestPriority int
	var bestCaller string
	found := false
	for caller, lvl := range a.demands[ledID] {
		p := a.priority(caller)
		if !found || p < bestPriority || (p == bestPriority && caller < bestCaller) {
			level, bestPriority, bestCaller, found = lvl, p, caller, true
		}
	}
	return level
}

func (a *Arbiter) priority(callerID string) int {
	if p, ok := a.priorities[callerID]; ok {
		return p
	}
	return math.MaxInt
}

// Flash derives an on/off level from elapsed time, toggling every period.
// Cadenced indicators share it so their phase depends only on elapsed time,
// never on tick count.
func Flash(elapsed, period time.Duration) bool {
	if period <= 0 {
		return true
	}
	return (elapsed/period)%2 == 0
}
