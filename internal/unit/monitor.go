package unit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
)

// MonitorConfig configures the central unit.
type MonitorConfig struct {
	MainTopic string
	AuxTopic  string
	PumpTopic string

	Threshold  int
	Thresholds logic.PumpThresholds
	Seed       logic.PumpState
	MaxAge     time.Duration

	// ReportZone is the zone of report timestamps that carry no offset.
	// Nil means time.Local.
	ReportZone *time.Location
}

// Topics returns the topics the monitor subscribes to. With a local panel
// the main reservoir is not taken from the bus.
func (c MonitorConfig) Topics(localPanel bool) []string {
	if localPanel {
		return []string{c.AuxTopic}
	}
	return []string{c.MainTopic, c.AuxTopic}
}

// Monitor aggregates both reservoir levels and commands the pump.
type Monitor struct {
	base
	cfg MonitorConfig

	// panel, if set, supplies the main reservoir level directly.
	panel gpio.Panel

	levels    map[logic.Reservoir]*logic.Debouncer
	freshness *logic.Freshness
	pump      *logic.PumpController
}

// NewMonitor creates a monitor. panel may be nil.
func NewMonitor(cfg MonitorConfig, panel gpio.Panel, d Deps) *Monitor {
	m := &Monitor{
		base:  newBase(d),
		cfg:   cfg,
		panel: panel,
		levels: map[logic.Reservoir]*logic.Debouncer{
			logic.ReservoirMain: logic.NewDebouncer(cfg.Threshold),
			logic.ReservoirAux:  logic.NewDebouncer(cfg.Threshold),
		},
		freshness: logic.NewFreshness(cfg.MaxAge, logic.ReservoirMain, logic.ReservoirAux),
		pump:      logic.NewPumpController(cfg.Thresholds, cfg.Seed),
	}
	m.Tracker.SetPump(m.pump.State(), false)
	return m
}

// Cycle reads the local panel if any, then, when the bus may be used,
// applies every received report and evaluates the pump.
func (m *Monitor) Cycle(ctx context.Context, now time.Time) {
	if m.panel != nil {
		if sw, err := m.panel.Read(); err != nil {
			m.gpioError("read panel", err)
		} else {
			m.observe(logic.ReservoirMain, gpio.EncodeLevel(sw))
			m.freshness.Touch(logic.ReservoirMain, now)
			m.Tracker.MarkReport(logic.ReservoirMain, now)
		}
	}

	if !m.Gate.Step(ctx) {
		return
	}
	m.lifecycle(now)

	for _, msg := range m.Bus.Drain() {
		m.handle(msg, now)
	}

	m.evaluate(now)
}

func (m *Monitor) handle(msg mqtt.Message, now time.Time) {
	var r logic.Reservoir
	switch msg.Topic {
	case m.cfg.MainTopic:
		r = logic.ReservoirMain
	case m.cfg.AuxTopic:
		r = logic.ReservoirAux
	default:
		log.Debug().Str("topic", msg.Topic).Msg("ignoring message on unexpected topic")
		return
	}

	report, err := mqtt.ParseLevelReport(msg.Payload, m.cfg.ReportZone)
	if err != nil {
		m.malformed(msg.Topic, msg.Payload, err)
	}
	if !report.Level.IsSet() && report.Timestamp.IsZero() {
		return
	}

	m.Metrics.Reports.WithLabelValues(string(r)).Inc()

	if report.Level.IsSet() {
		m.observe(r, report.Level.Value())
	}
	if !report.Timestamp.IsZero() {
		// a probe clock ahead of ours must not extend freshness
		at := report.Timestamp
		if at.After(now) {
			at = now
		}
		m.freshness.Touch(r, at)
		m.Tracker.MarkReport(r, at)
	}
}

func (m *Monitor) observe(r logic.Reservoir, raw int) {
	d := m.levels[r]
	before := d.Stable()
	level := d.Observe(raw)
	if level != before {
		log.Info().Str("reservoir", string(r)).Stringer("from", before).Stringer("to", level).Msg("level changed")
	}
	m.Tracker.SetLevel(r, level, d.Mismatches())
	m.Metrics.ObserveLevel(r, level)
}

func (m *Monitor) evaluate(now time.Time) {
	fresh := m.freshness.Fresh(now)
	m.Tracker.SetFresh(fresh)

	main, aux := m.levels[logic.ReservoirMain].Stable(), m.levels[logic.ReservoirAux].Stable()
	cmd, changed := m.pump.Evaluate(main, aux, fresh)
	m.Tracker.SetPump(m.pump.State(), changed)
	if !changed {
		return
	}

	log.Info().
		Stringer("main", main).
		Stringer("aux", aux).
		Bool("fresh", fresh).
		Str("pump", string(cmd.State)).
		Msg("pump state changed")
	m.Metrics.ObservePump(cmd.State)

	payload, err := mqtt.FormatPumpCommand(cmd)
	if err != nil {
		log.Error().Err(err).Msg("format pump command")
		return
	}
	// the new state stands even if the command is lost
	_ = m.publish(m.cfg.PumpTopic, payload)
}

// Shutdown publishes SHUTDOWN if still connected. The pump command is left
// as is; the relay unit owns the output.
func (m *Monitor) Shutdown(reason string) {
	m.shutdown(reason)
}

// Level returns the stable level of r.
func (m *Monitor) Level(r logic.Reservoir) logic.Level {
	d, ok := m.levels[r]
	if !ok {
		return logic.Unset()
	}
	return d.Stable()
}

// Pump returns the current pump state.
func (m *Monitor) Pump() logic.PumpState {
	return m.pump.State()
}
