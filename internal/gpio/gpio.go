// Package gpio provides float-switch panel reading and pump relay output
// with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// SwitchCount is the number of float switches on a probe panel.
const SwitchCount = 4

// Switches holds one reading of the panel, lowest switch first.
type Switches [SwitchCount]bool

// Panel reads the float switches of one reservoir probe.
type Panel interface {
	// Read returns the logical state of every switch (true = submerged).
	Read() (Switches, error)

	// Close releases GPIO resources.
	Close() error
}

// Relay drives the pump relay output.
type Relay interface {
	// Set energises (true) or releases (false) the relay.
	Set(on bool) error

	// Close returns the line to the released state and frees it.
	Close() error
}

// Default pin definitions (BCM numbering), lowest switch first.
var DefaultSwitchPins = []int{17, 27, 22, 23}

// DefaultRelayPin is the BCM pin wired to the pump relay.
const DefaultRelayPin = 24

// Bias values accepted by PanelConfig.
const (
	BiasPullDown = "pull-down"
	BiasPullUp   = "pull-up"
	BiasDisabled = "disabled"
)

// PanelConfig describes how the switches are wired.
type PanelConfig struct {
	Chip      string
	Pins      []int
	Bias      string
	ActiveLow bool
}

// RelayConfig describes how the pump relay is wired.
type RelayConfig struct {
	Chip       string
	Pin        int
	ActiveHigh bool
}

// EncodeLevel priority-encodes a reading: the highest-indexed active switch
// wins and 0 means no switch is active.
func EncodeLevel(s Switches) int {
	for i := SwitchCount - 1; i >= 0; i-- {
		if s[i] {
			return i + 1
		}
	}
	return 0
}

// Bits returns the switches as 0/1 integers, the form used on the wire.
func (s Switches) Bits() [SwitchCount]int {
	var out [SwitchCount]int
	for i, on := range s {
		if on {
			out[i] = 1
		}
	}
	return out
}
