// Package gesture classifies button-hold durations into trigger events.
//
// Pure logic in the style of a state machine: time arrives as a parameter,
// LED feedback leaves as demands on an arbiter sink, and the outcome of a
// press is committed exactly once, at release. The package never sleeps and
// never touches hardware.
package gesture

import (
	"time"

	"github.com/sweeney/proxiswitch/internal/led"
)

// Trigger is the outcome committed when the button is released.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerWifiToggle
	TriggerLearn
	TriggerFactoryReset
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "NONE"
	case TriggerWifiToggle:
		return "WIFI_TOGGLE"
	case TriggerLearn:
		return "LEARN"
	case TriggerFactoryReset:
		return "FACTORY_RESET"
	}
	return "UNKNOWN"
}

// Thresholds holds the press-duration boundaries. WifiOn, Learn and
// FactoryReset must be strictly increasing; the settings store enforces
// that before they get here.
type Thresholds struct {
	WifiOn       time.Duration
	WifiOff      time.Duration
	Learn        time.Duration
	FactoryReset time.Duration
}

// LedSink receives hold-feedback demands. *led.Arbiter satisfies it.
type LedSink interface {
	Demand(ledID, callerID string, on bool)
	ClearOff(ledID, callerID string)
}

// Caller is the arbiter caller id for all hold feedback.
const Caller = "gesture"

// feedbackPeriod is the flash period for hold feedback.
const feedbackPeriod = 50 * time.Millisecond

type phase int

const (
	phaseIdle phase = iota
	phaseHolding
)

// Machine tracks one button through press cycles.
type Machine struct {
	thresholds Thresholds
	leds       LedSink
	learnLed   string
	closeLed   string

	phase        phase
	pressStartAt time.Time
}

// NewMachine creates a machine reporting feedback on the named LEDs.
func NewMachine(thresholds Thresholds, leds LedSink, learnLedID, closeLedID string) *Machine {
	return &Machine{
		thresholds: thresholds,
		leds:       leds,
		learnLed:   learnLedID,
		closeLed:   closeLedID,
	}
}

// SetThresholds replaces the press-duration boundaries. Takes effect on the
// next classification.
func (m *Machine) SetThresholds(t Thresholds) {
	m.thresholds = t
}

// Tick advances the machine with the current button level. While the button
// is held it drives window feedback; the press is classified once, at
// release. networkActive selects the active gesture map: with the
// configuration network up, Learn is unavailable and the WiFi toggle
// requires a hold longer than WifiOff.
func (m *Machine) Tick(pressed, networkActive bool, now time.Time) Trigger {
	switch m.phase {
	case phaseIdle:
		if pressed {
			m.phase = phaseHolding
			m.pressStartAt = now
		}
		return TriggerNone

	case phaseHolding:
		elapsed := now.Sub(m.pressStartAt)
		if pressed {
			m.holdFeedback(elapsed, networkActive)
			return TriggerNone
		}
		m.clearFeedback()
		m.phase = phaseIdle
		return m.classify(elapsed, networkActive)
	}
	return TriggerNone
}

// classify maps a completed hold to its outcome. Longer holds win: a hold
// past the factory threshold is a factory reset in either mode.
func (m *Machine) classify(elapsed time.Duration, networkActive bool) Trigger {
	switch {
	case elapsed >= m.thresholds.FactoryReset:
		return TriggerFactoryReset
	case !networkActive && elapsed >= m.thresholds.Learn:
		return TriggerLearn
	case !networkActive && elapsed >= m.thresholds.WifiOn:
		return TriggerWifiToggle
	case networkActive && elapsed > m.thresholds.WifiOff:
		return TriggerWifiToggle
	}
	return TriggerNone
}

// holdFeedback shows which window the hold currently sits in. Cosmetic:
// only release commits an outcome.
//
//	learn LED flashing  factory reset
//	learn LED solid     learn
//	close LED flashing  wifi toggle
func (m *Machine) holdFeedback(elapsed time.Duration, networkActive bool) {
	flash := led.Flash(elapsed, feedbackPeriod)
	switch {
	case elapsed >= m.thresholds.FactoryReset:
		m.leds.ClearOff(m.closeLed, Caller)
		m.leds.Demand(m.learnLed, Caller, flash)
	case !networkActive && elapsed >= m.thresholds.Learn:
		m.leds.ClearOff(m.closeLed, Caller)
		m.leds.Demand(m.learnLed, Caller, true)
	case !networkActive && elapsed >= m.thresholds.WifiOn:
		m.leds.Demand(m.closeLed, Caller, flash)
	case networkActive && elapsed > m.thresholds.WifiOff:
		m.leds.Demand(m.closeLed, Caller, flash)
	}
}

// clearFeedback withdraws every feedback demand at release.
func (m *Machine) clearFeedback() {
	m.leds.ClearOff(m.learnLed, Caller)
	m.leds.ClearOff(m.closeLed, Caller)
}
