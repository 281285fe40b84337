// Package logic contains the pure control logic for the water-level system:
// level debouncing, pump hysteresis and report freshness.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "strconv"

// MaxLevel is the highest ordinal a four-switch probe can report.
const MaxLevel = 4

// Level is a debounced reservoir level. The zero value is unset, which is
// distinct from the valid level 0 ("no switch active").
type Level struct {
	value int
	set   bool
}

// Unset returns the level used before any sample has been accepted.
func Unset() Level {
	return Level{}
}

// LevelOf returns a set level with the given ordinal.
func LevelOf(n int) Level {
	return Level{value: n, set: true}
}

// IsSet reports whether the level holds a reading.
func (l Level) IsSet() bool {
	return l.set
}

// Value returns the ordinal. It is 0 for an unset level; check IsSet first.
func (l Level) Value() int {
	return l.value
}

// String returns the ordinal, or "UNSET".
func (l Level) String() string {
	if !l.set {
		return "UNSET"
	}
	return strconv.Itoa(l.value)
}

// PumpState is the commanded state of the transfer pump.
type PumpState string

const (
	PumpOn  PumpState = "ON"
	PumpOff PumpState = "OFF"
)

// ParsePumpState converts "ON"/"OFF" into a PumpState.
func ParsePumpState(s string) (PumpState, bool) {
	switch PumpState(s) {
	case PumpOn:
		return PumpOn, true
	case PumpOff:
		return PumpOff, true
	}
	return "", false
}

// PumpCommand is emitted by the pump controller on a state transition.
type PumpCommand struct {
	State PumpState
}

// Reservoir identifies one of the two monitored water containers.
type Reservoir string

const (
	ReservoirMain Reservoir = "main"
	ReservoirAux  Reservoir = "aux"
)
