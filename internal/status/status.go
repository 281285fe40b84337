// Package status provides a thread-safe status tracker for the water-level
// units. It is written by the control loop and read by HTTP handlers and the
// heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

// Config contains unit configuration for display.
type Config struct {
	Role              string
	UnitID            string
	CycleMs           int64
	HeartbeatMs       int64
	DebounceThreshold int
	FreshnessMaxAgeMs int64
	Broker            string
	HTTPAddr          string
}

// Reservoir is the tracked state of one reservoir.
type Reservoir struct {
	Level      logic.Level
	Mismatches int
	LastReport time.Time // zero until the first report (monitor only)
	Reports    int
}

// Snapshot is a point-in-time view of unit state.
// It is a value copy and safe to use after the lock is released.
type Snapshot struct {
	Reservoirs map[logic.Reservoir]Reservoir

	// Pump is empty for units that neither command nor drive the pump.
	Pump         logic.PumpState
	PumpCommands int
	Fresh        bool

	Transport supervisor.State
	Bus       supervisor.State

	Published     int
	PublishErrors int
	GPIOErrors    int
	Malformed     int

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the unit started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether both connectivity layers are up.
func (s Snapshot) Ready() bool {
	return s.Transport == supervisor.Up && s.Bus == supervisor.Up
}

// Tracker holds mutable unit state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for the given reservoirs.
func NewTracker(startTime time.Time, cfg Config, reservoirs ...logic.Reservoir) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			Reservoirs: make(map[logic.Reservoir]Reservoir, len(reservoirs)),
			StartTime:  startTime,
			Config:     cfg,
		},
	}
	for _, r := range reservoirs {
		t.snap.Reservoirs[r] = Reservoir{}
	}
	return t
}

// SetLevel records the debounced level and mismatch counter of r.
// Called from the control loop on every sample.
func (t *Tracker) SetLevel(r logic.Reservoir, level logic.Level, mismatches int) {
	t.mu.Lock()
	res := t.snap.Reservoirs[r]
	res.Level = level
	res.Mismatches = mismatches
	t.snap.Reservoirs[r] = res
	t.mu.Unlock()
}

// MarkReport records a received level report for r.
func (t *Tracker) MarkReport(r logic.Reservoir, at time.Time) {
	t.mu.Lock()
	res := t.snap.Reservoirs[r]
	res.LastReport = at
	res.Reports++
	t.snap.Reservoirs[r] = res
	t.mu.Unlock()
}

// MarkMalformed counts an inbound payload with an undecodable field.
func (t *Tracker) MarkMalformed() {
	t.mu.Lock()
	t.snap.Malformed++
	t.mu.Unlock()
}

// SetPump records the pump state. changed counts a transition.
func (t *Tracker) SetPump(state logic.PumpState, changed bool) {
	t.mu.Lock()
	t.snap.Pump = state
	if changed {
		t.snap.PumpCommands++
	}
	t.mu.Unlock()
}

// SetFresh records the freshness verdict of the last evaluation.
func (t *Tracker) SetFresh(fresh bool) {
	t.mu.Lock()
	t.snap.Fresh = fresh
	t.mu.Unlock()
}

// CountPublish counts a publish attempt.
func (t *Tracker) CountPublish(err error) {
	t.mu.Lock()
	if err != nil {
		t.snap.PublishErrors++
	} else {
		t.snap.Published++
	}
	t.mu.Unlock()
}

// CountGPIOError counts a failed GPIO operation.
func (t *Tracker) CountGPIOError() {
	t.mu.Lock()
	t.snap.GPIOErrors++
	t.mu.Unlock()
}

// SetLink sets the state of one connectivity layer.
func (t *Tracker) SetLink(layer supervisor.Layer, state supervisor.State) {
	t.mu.Lock()
	switch layer {
	case supervisor.LayerTransport:
		t.snap.Transport = state
	case supervisor.LayerBus:
		t.snap.Bus = state
	}
	t.mu.Unlock()
}

// SupervisorHooks keeps the connectivity fields in step with the supervisor.
func (t *Tracker) SupervisorHooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnChange: func(layer supervisor.Layer, _, to supervisor.State) {
			t.SetLink(layer, to)
		},
	}
}

// Snapshot returns a point-in-time copy of the unit state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Reservoirs = make(map[logic.Reservoir]Reservoir, len(t.snap.Reservoirs))
	for r, res := range t.snap.Reservoirs {
		s.Reservoirs[r] = res
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
