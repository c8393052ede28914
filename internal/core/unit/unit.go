package unit

import "fmt"

// Unit is the semantic type of a stored or requested value.
// A resource stores samples in exactly one native unit; requests may ask for
// any unit the rule registry can convert to.
type Unit string

const (
	Watt          Unit = "watt"
	Kilowatt      Unit = "kilowatt"
	WattHour      Unit = "watt_hour"
	KilowattHour  Unit = "kilowatt_hour"
	PoundSterling Unit = "pound_sterling"
	Celsius       Unit = "celsius"
	Unknown       Unit = "unknown"
	ButtonState   Unit = "button_state"
	MotionState   Unit = "motion_state"
	ContactState  Unit = "contact_state"
	EventsCount   Unit = "events_count"
)

var allUnits = map[Unit]struct{}{
	Watt:          {},
	Kilowatt:      {},
	WattHour:      {},
	KilowattHour:  {},
	PoundSterling: {},
	Celsius:       {},
	Unknown:       {},
	ButtonState:   {},
	MotionState:   {},
	ContactState:  {},
	EventsCount:   {},
}

// Parse validates a wire-format unit name.
func Parse(s string) (Unit, error) {
	u := Unit(s)
	if _, ok := allUnits[u]; !ok {
		return "", fmt.Errorf("unknown unit %q", s)
	}
	return u, nil
}

func (u Unit) String() string { return string(u) }

// Discrete reports whether the unit encodes an integer-coded device state
// rather than a continuous measurement. Discrete units are served by state
// queries and event-count conversions, never by numeric reductions.
func (u Unit) Discrete() bool {
	switch u {
	case ButtonState, MotionState, ContactState:
		return true
	}
	return false
}

// Integer codes for discrete state units. Code 0 is always "idle"/"closed".
const (
	ButtonIdle   = 0
	ButtonPushed = 1
	ButtonDouble = 2
	ButtonHeld   = 3

	MotionIdle   = 0
	MotionActive = 1

	ContactClosed = 0
	ContactOpen   = 1
)

// DecodeState renders an integer-coded state value as its wire name.
// Unmapped codes fall back to the raw integer so callers never lose data.
func DecodeState(u Unit, code int) string {
	switch u {
	case ButtonState:
		switch code {
		case ButtonIdle:
			return "idle"
		case ButtonPushed:
			return "pushed"
		case ButtonDouble:
			return "double"
		case ButtonHeld:
			return "held"
		}
	case MotionState:
		switch code {
		case MotionIdle:
			return "idle"
		case MotionActive:
			return "active"
		}
	case ContactState:
		switch code {
		case ContactClosed:
			return "closed"
		case ContactOpen:
			return "open"
		}
	}
	return fmt.Sprintf("%d", code)
}
