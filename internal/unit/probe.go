package unit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
)

// ProbeConfig configures a probe unit.
type ProbeConfig struct {
	Reservoir logic.Reservoir
	Topic     string
	Threshold int
}

// Probe reads one reservoir's float switches and reports its stable level.
type Probe struct {
	base
	cfg      ProbeConfig
	panel    gpio.Panel
	debounce *logic.Debouncer
	switches gpio.Switches
}

// NewProbe creates a probe unit reading from panel.
func NewProbe(cfg ProbeConfig, panel gpio.Panel, d Deps) *Probe {
	return &Probe{
		base:     newBase(d),
		cfg:      cfg,
		panel:    panel,
		debounce: logic.NewDebouncer(cfg.Threshold),
	}
}

// Cycle samples and debounces the panel every call, then publishes the
// stable level if the bus may be used.
func (p *Probe) Cycle(ctx context.Context, now time.Time) {
	p.sample()

	if !p.Gate.Step(ctx) {
		return
	}
	p.lifecycle(now)

	level := p.debounce.Stable()
	if !level.IsSet() {
		return
	}
	payload, err := mqtt.FormatLevelReport(p.switches, level, now)
	if err != nil {
		log.Error().Err(err).Msg("format level report")
		return
	}
	_ = p.publish(p.cfg.Topic, payload)
}

func (p *Probe) sample() {
	sw, err := p.panel.Read()
	if err != nil {
		p.gpioError("read panel", err)
		return
	}
	p.switches = sw

	raw := gpio.EncodeLevel(sw)
	before := p.debounce.Stable()
	level := p.debounce.Observe(raw)
	if level != before {
		log.Info().Str("reservoir", string(p.cfg.Reservoir)).Stringer("from", before).Stringer("to", level).Msg("level changed")
	}

	p.Tracker.SetLevel(p.cfg.Reservoir, level, p.debounce.Mismatches())
	p.Metrics.ObserveLevel(p.cfg.Reservoir, level)
}

// Shutdown publishes SHUTDOWN if still connected.
func (p *Probe) Shutdown(reason string) {
	p.shutdown(reason)
}

// Stable returns the debounced level.
func (p *Probe) Stable() logic.Level {
	return p.debounce.Stable()
}
