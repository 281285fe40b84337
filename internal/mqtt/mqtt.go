// Package mqtt adapts the MQTT message bus for the water-level units and
// defines the JSON payloads exchanged on it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
)

// Default topic names.
const (
	TopicMainProbe = "water-level/main-probe"
	TopicAuxProbe  = "water-level/aux-probe"
	TopicPump      = "water-level/pump"
)

// StatusTopic returns the topic a unit publishes its status events on.
func StatusTopic(unitID string) string {
	return "water-level/" + unitID + "/status"
}

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("mqtt: not connected")

// Message is an inbound message queued for the control loop.
type Message struct {
	Topic   string
	Payload []byte
}

// Bus is the publish/subscribe session used by a unit. Inbound messages are
// queued and handed over by Drain so that only the control loop touches
// unit state.
type Bus interface {
	// Connect establishes a fresh session, replacing any existing one.
	Connect(ctx context.Context) error

	// Connected reports whether the session is usable.
	Connected() bool

	// Subscribe registers interest in topic for the current session.
	Subscribe(topic string) error

	// Publish sends payload to topic. Failures are not retried.
	Publish(topic string, payload []byte) error

	// Drain returns and clears every message received since the last call.
	Drain() []Message

	// Close disconnects from the broker.
	Close() error
}

// TimestampLayout is the firmware's date-time format, accepted on input.
const TimestampLayout = "2006-1-2 15:04:05"

// LevelReport is the payload published by a probe.
type LevelReport struct {
	Sensor1   int    `json:"sensor_1"`
	Sensor2   int    `json:"sensor_2"`
	Sensor3   int    `json:"sensor_3"`
	Sensor4   int    `json:"sensor_4"`
	Level     int    `json:"level"`
	Timestamp string `json:"timestamp"`
}

// FormatLevelReport creates the JSON payload for a probe reading.
// level is the probe's stable level; switches are the raw reading.
func FormatLevelReport(switches gpio.Switches, level logic.Level, ts time.Time) ([]byte, error) {
	if !level.IsSet() {
		return nil, errors.New("level report needs a stable level")
	}
	bits := switches.Bits()
	return json.Marshal(LevelReport{
		Sensor1:   bits[0],
		Sensor2:   bits[1],
		Sensor3:   bits[2],
		Sensor4:   bits[3],
		Level:     level.Value(),
		Timestamp: ts.UTC().Format(time.RFC3339),
	})
}

// Report is a decoded level report. A field that could not be decoded is
// left unset (Level) or zero (Timestamp).
type Report struct {
	Level     logic.Level
	Timestamp time.Time
}

// ParseLevelReport decodes a probe payload. It returns whatever fields could
// be decoded together with an error describing every field that could not.
// Timestamps in the firmware layout carry no offset and are read in zone;
// a nil zone means time.Local.
func ParseLevelReport(payload []byte, zone *time.Location) (Report, error) {
	var r Report

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return r, fmt.Errorf("decode level report: %w", err)
	}

	var errs []error

	if raw, ok := fields["level"]; !ok {
		errs = append(errs, errors.New("level: missing"))
	} else {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			errs = append(errs, fmt.Errorf("level: %w", err))
		} else if n < 0 || n > logic.MaxLevel {
			errs = append(errs, fmt.Errorf("level: %d out of range 0-%d", n, logic.MaxLevel))
		} else {
			r.Level = logic.LevelOf(n)
		}
	}

	if raw, ok := fields["timestamp"]; !ok {
		errs = append(errs, errors.New("timestamp: missing"))
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			errs = append(errs, fmt.Errorf("timestamp: %w", err))
		} else if ts, err := parseTimestamp(s, zone); err != nil {
			errs = append(errs, fmt.Errorf("timestamp: %w", err))
		} else {
			r.Timestamp = ts
		}
	}

	return r, errors.Join(errs...)
}

func parseTimestamp(s string, zone *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if zone == nil {
		zone = time.Local
	}
	ts, err := time.ParseInLocation(TimestampLayout, s, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	}
	return ts, nil
}

// PumpPayload is the command published to the pump topic.
type PumpPayload struct {
	TurnPump string `json:"turnPump"`
}

// FormatPumpCommand creates the JSON payload for a pump command.
func FormatPumpCommand(cmd logic.PumpCommand) ([]byte, error) {
	if _, ok := logic.ParsePumpState(string(cmd.State)); !ok {
		return nil, fmt.Errorf("invalid pump state %q", cmd.State)
	}
	return json.Marshal(PumpPayload{TurnPump: string(cmd.State)})
}

// ParsePumpCommand decodes a pump command payload.
func ParsePumpCommand(payload []byte) (logic.PumpCommand, error) {
	var p PumpPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return logic.PumpCommand{}, fmt.Errorf("decode pump command: %w", err)
	}
	state, ok := logic.ParsePumpState(p.TurnPump)
	if !ok {
		return logic.PumpCommand{}, fmt.Errorf("turnPump: invalid value %q", p.TurnPump)
	}
	return logic.PumpCommand{State: state}, nil
}

// SystemEvent represents a unit lifecycle event (startup, heartbeat, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
}

// SystemPayload is the minimal system event payload, used when no status
// snapshot is attached (e.g. the last-will message).
type SystemPayload struct {
	Status SystemPayloadInner `json:"status"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{Status: inner})
}
