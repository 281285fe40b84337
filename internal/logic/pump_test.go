package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPumpTurnsOnOnceFromOff(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOff)

	cmd, ok := c.Evaluate(LevelOf(2), LevelOf(3), true)
	assert.True(t, ok)
	assert.Equal(t, PumpOn, cmd.State)
	assert.Equal(t, PumpOn, c.State())

	_, ok = c.Evaluate(LevelOf(2), LevelOf(3), true)
	assert.False(t, ok, "identical input must not command again")
}

func TestPumpNoChatter(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOff)

	commands := 0
	for i := 0; i < 20; i++ {
		if _, ok := c.Evaluate(LevelOf(3), LevelOf(3), true); ok {
			commands++
		}
	}
	assert.Equal(t, 1, commands)
	assert.Equal(t, PumpOn, c.State())
}

func TestPumpSeedOnIsForcedOffOnFirstStopDecision(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOn)

	cmd, ok := c.Evaluate(LevelOf(1), LevelOf(1), true)
	assert.True(t, ok)
	assert.Equal(t, PumpOff, cmd.State)
}

func TestPumpSeedOnCommandsOnWhenRunnable(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOn)

	commands := 0
	for i := 0; i < 20; i++ {
		cmd, ok := c.Evaluate(LevelOf(3), LevelOf(3), true)
		if ok {
			commands++
			assert.Equal(t, PumpOn, cmd.State)
		}
	}
	assert.Equal(t, 1, commands, "first evaluation commands ON exactly once")
	assert.Equal(t, PumpOn, c.State())
}

func TestPumpFirstEvaluationCommandsHeldSeed(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOn)

	// main full: neither rule applies, the seed holds and is sent once
	cmd, ok := c.Evaluate(LevelOf(4), LevelOf(4), true)
	assert.True(t, ok)
	assert.Equal(t, PumpOn, cmd.State)

	_, ok = c.Evaluate(LevelOf(4), LevelOf(4), true)
	assert.False(t, ok)
}

func TestPumpThresholdCrossing(t *testing.T) {
	tests := []struct {
		name  string
		main  Level
		aux   Level
		fresh bool
	}{
		{"aux at minimum", LevelOf(1), LevelOf(2), true},
		{"aux empty", LevelOf(1), LevelOf(0), true},
		{"main at off level", LevelOf(5), LevelOf(4), true},
		{"stale reports", LevelOf(1), LevelOf(4), false},
		{"aux unset", LevelOf(1), Unset(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPumpController(DefaultPumpThresholds(), PumpOff)
			_, ok := c.Evaluate(LevelOf(1), LevelOf(4), true)
			assert.True(t, ok, "precondition: pump on")

			cmd, ok := c.Evaluate(tt.main, tt.aux, tt.fresh)
			assert.True(t, ok)
			assert.Equal(t, PumpOff, cmd.State)
		})
	}
}

func TestPumpHoldsBetweenThresholds(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOff)
	c.Evaluate(LevelOf(1), LevelOf(4), true)

	// main full (4) is not below the on threshold and not at the off level
	_, ok := c.Evaluate(LevelOf(4), LevelOf(4), true)
	assert.False(t, ok)
	assert.Equal(t, PumpOn, c.State())

	c = NewPumpController(DefaultPumpThresholds(), PumpOff)
	c.Evaluate(LevelOf(4), LevelOf(4), true)
	_, ok = c.Evaluate(LevelOf(4), LevelOf(4), true)
	assert.False(t, ok)
	assert.Equal(t, PumpOff, c.State())
}

func TestPumpUnsetMainNeverStarts(t *testing.T) {
	c := NewPumpController(DefaultPumpThresholds(), PumpOff)

	for i := 0; i < 3; i++ {
		cmd, ok := c.Evaluate(Unset(), LevelOf(4), true)
		if ok {
			assert.Equal(t, PumpOff, cmd.State)
		}
	}
	assert.Equal(t, PumpOff, c.State())
}

func TestPumpCustomThresholds(t *testing.T) {
	c := NewPumpController(PumpThresholds{MainOnBelow: 3, MainOffAt: 4, AuxSupplyAbove: 1}, PumpOff)

	cmd, ok := c.Evaluate(LevelOf(2), LevelOf(2), true)
	assert.True(t, ok)
	assert.Equal(t, PumpOn, cmd.State)

	cmd, ok = c.Evaluate(LevelOf(4), LevelOf(2), true)
	assert.True(t, ok)
	assert.Equal(t, PumpOff, cmd.State)
}

func TestParsePumpState(t *testing.T) {
	s, ok := ParsePumpState("ON")
	assert.True(t, ok)
	assert.Equal(t, PumpOn, s)

	s, ok = ParsePumpState("OFF")
	assert.True(t, ok)
	assert.Equal(t, PumpOff, s)

	_, ok = ParsePumpState("on")
	assert.False(t, ok)
}
