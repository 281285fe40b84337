package logic

// PumpThresholds are the level boundaries of the hysteresis policy.
type PumpThresholds struct {
	// MainOnBelow: the pump may run while the main level is below this.
	MainOnBelow int
	// MainOffAt: the pump stops when the main level equals this.
	// The default of 5 is outside the 0-4 probe range and never fires.
	MainOffAt int
	// AuxSupplyAbove: the aux reservoir can supply while above this.
	AuxSupplyAbove int
}

// DefaultPumpThresholds returns the thresholds used by the field units.
func DefaultPumpThresholds() PumpThresholds {
	return PumpThresholds{
		MainOnBelow:    4,
		MainOffAt:      5,
		AuxSupplyAbove: 2,
	}
}

// PumpController decides the pump state from both reservoir levels.
type PumpController struct {
	thresholds PumpThresholds
	state      PumpState
	commanded  bool
}

// NewPumpController creates a controller seeded with the given state.
// The seed is only the starting point of the hysteresis: nothing has been
// commanded yet, so the first Evaluate always returns a command.
func NewPumpController(thresholds PumpThresholds, seed PumpState) *PumpController {
	if seed != PumpOn && seed != PumpOff {
		seed = PumpOn
	}
	return &PumpController{thresholds: thresholds, state: seed}
}

// Evaluate applies the hysteresis rules. The first call returns the decided
// state; after that a command is returned only when the pump state changes.
// If neither rule matches, the state holds.
func (c *PumpController) Evaluate(main, aux Level, fresh bool) (PumpCommand, bool) {
	next := c.state
	switch {
	case c.shouldRun(main, aux, fresh):
		next = PumpOn
	case c.shouldStop(main, aux, fresh):
		next = PumpOff
	}

	if c.commanded && next == c.state {
		return PumpCommand{}, false
	}
	c.state = next
	c.commanded = true
	return PumpCommand{State: next}, true
}

// State returns the last decided pump state.
func (c *PumpController) State() PumpState {
	return c.state
}

func (c *PumpController) shouldRun(main, aux Level, fresh bool) bool {
	return main.IsSet() && main.Value() < c.thresholds.MainOnBelow &&
		c.auxCanSupply(aux) && fresh
}

func (c *PumpController) shouldStop(main, aux Level, fresh bool) bool {
	mainHigh := main.IsSet() && main.Value() == c.thresholds.MainOffAt
	return mainHigh || !c.auxCanSupply(aux) || !fresh
}

func (c *PumpController) auxCanSupply(aux Level) bool {
	return aux.IsSet() && aux.Value() > c.thresholds.AuxSupplyAbove
}
