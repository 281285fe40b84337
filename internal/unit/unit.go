// Package unit runs the per-role control cycles. Each Cycle is called once
// per tick by the single control-loop goroutine and owns all core state;
// only the status tracker and metrics are shared with other goroutines.
package unit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/metrics"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
	"github.com/henrique-kyke/water-level-controller/internal/status"
)

// Lifecycle event names published on the unit status topic.
const (
	EventStartup   = "STARTUP"
	EventHeartbeat = "HEARTBEAT"
	EventShutdown  = "SHUTDOWN"
)

// Gate decides whether a cycle may use the bus, advancing reconnects when
// it may not. *supervisor.Supervisor implements it.
type Gate interface {
	Step(ctx context.Context) bool
}

// Unit is one role's control loop.
type Unit interface {
	// Cycle runs one control cycle at now.
	Cycle(ctx context.Context, now time.Time)

	// Shutdown publishes a SHUTDOWN event if the bus is still connected and
	// puts outputs in their safe state.
	Shutdown(reason string)
}

// Deps are the collaborators shared by every role.
type Deps struct {
	UnitID  string
	Bus     mqtt.Bus
	Gate    Gate
	Tracker *status.Tracker
	Metrics *metrics.Metrics

	// Heartbeat is the status publish interval. Zero disables heartbeats.
	Heartbeat time.Duration
}

type base struct {
	Deps

	statusTopic   string
	announced     bool
	lastHeartbeat time.Time
}

func newBase(d Deps) base {
	return base{
		Deps:        d,
		statusTopic: mqtt.StatusTopic(d.UnitID),
	}
}

// publish sends one message. Failures are logged and counted; the message
// is dropped.
func (b *base) publish(topic string, payload []byte) error {
	err := b.Bus.Publish(topic, payload)
	b.Tracker.CountPublish(err)
	if err != nil {
		b.Metrics.PublishErrors.WithLabelValues(topic).Inc()
		log.Warn().Err(err).Str("topic", topic).Msg("publish failed, message dropped")
		return err
	}
	b.Metrics.Published.WithLabelValues(topic).Inc()
	log.Debug().Str("topic", topic).Bytes("payload", payload).Msg("published")
	return nil
}

// lifecycle publishes STARTUP the first time the bus is usable and a
// heartbeat every Heartbeat after that. Call only on a permitted cycle.
func (b *base) lifecycle(now time.Time) {
	if !b.announced {
		if b.publishStatus(EventStartup, "") == nil {
			b.announced = true
			b.lastHeartbeat = now
		}
		return
	}
	if b.Heartbeat > 0 && now.Sub(b.lastHeartbeat) >= b.Heartbeat {
		b.lastHeartbeat = now
		_ = b.publishStatus(EventHeartbeat, "")
	}
}

func (b *base) publishStatus(event, reason string) error {
	payload, _ := mqtt.FormatSystemPayload(mqtt.SystemEvent{
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(b.Tracker.Snapshot(), event, reason),
	})
	return b.publish(b.statusTopic, payload)
}

// shutdown publishes SHUTDOWN when a session is still open.
func (b *base) shutdown(reason string) {
	if !b.Bus.Connected() {
		log.Info().Str("reason", reason).Msg("bus not connected, skipping shutdown event")
		return
	}
	_ = b.publishStatus(EventShutdown, reason)
}

// malformed is the observability hook for undecodable inbound payloads.
func (b *base) malformed(topic string, payload []byte, err error) {
	log.Warn().Err(err).Str("topic", topic).Bytes("payload", payload).Msg("malformed payload")
	b.Metrics.Malformed.WithLabelValues(topic).Inc()
	b.Tracker.MarkMalformed()
}

func (b *base) gpioError(op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("gpio error")
	b.Metrics.GPIOErrors.Inc()
	b.Tracker.CountGPIOError()
}
