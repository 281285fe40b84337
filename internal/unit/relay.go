package unit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
)

// Relay drives the pump output from commands received on the pump topic.
type Relay struct {
	base
	topic  string
	output gpio.Relay
	state  logic.PumpState
}

// NewRelay creates a relay unit and releases the output.
func NewRelay(topic string, output gpio.Relay, d Deps) *Relay {
	r := &Relay{
		base:   newBase(d),
		topic:  topic,
		output: output,
		state:  logic.PumpOff,
	}
	if err := output.Set(false); err != nil {
		r.gpioError("release relay", err)
	}
	r.Tracker.SetPump(r.state, false)
	r.Metrics.PumpOn.Set(0)
	return r
}

// Cycle applies every pump command received since the last cycle, in order.
func (r *Relay) Cycle(ctx context.Context, now time.Time) {
	if !r.Gate.Step(ctx) {
		return
	}
	r.lifecycle(now)

	for _, msg := range r.Bus.Drain() {
		if msg.Topic != r.topic {
			log.Debug().Str("topic", msg.Topic).Msg("ignoring message on unexpected topic")
			continue
		}
		cmd, err := mqtt.ParsePumpCommand(msg.Payload)
		if err != nil {
			r.malformed(msg.Topic, msg.Payload, err)
			continue
		}
		r.apply(cmd.State)
	}
}

func (r *Relay) apply(state logic.PumpState) {
	if state == r.state {
		return
	}
	if err := r.output.Set(state == logic.PumpOn); err != nil {
		// state is kept so the next identical command retries the write
		r.gpioError("set relay", err)
		return
	}
	log.Info().Str("from", string(r.state)).Str("to", string(state)).Msg("pump relay switched")
	r.state = state
	r.Tracker.SetPump(state, true)
	r.Metrics.ObservePump(state)
}

// Shutdown publishes SHUTDOWN if still connected and releases the relay.
func (r *Relay) Shutdown(reason string) {
	r.shutdown(reason)
	if err := r.output.Set(false); err != nil {
		r.gpioError("release relay", err)
		return
	}
	if r.state != logic.PumpOff {
		log.Info().Msg("pump relay released on shutdown")
		r.state = logic.PumpOff
		r.Tracker.SetPump(logic.PumpOff, true)
	}
}

// State returns the state the relay is driven to.
func (r *Relay) State() logic.PumpState {
	return r.state
}
