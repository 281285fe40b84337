package status

import (
	"encoding/json"
	"time"

	"github.com/henrique-kyke/water-level-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                   `json:"event,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	Role          string                   `json:"role"`
	UnitID        string                   `json:"unit_id"`
	Ready         bool                     `json:"ready"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	StartTime     string                   `json:"start_time"`
	Timestamp     string                   `json:"timestamp"`
	Connectivity  ConnectivityJSON         `json:"connectivity"`
	Reservoirs    map[string]ReservoirJSON `json:"reservoirs,omitempty"`
	Pump          *PumpJSON                `json:"pump,omitempty"`
	Counts        CountsJSON               `json:"counts"`
	Config        ConfigJSON               `json:"config"`
}

// ConnectivityJSON reports the supervised layers.
type ConnectivityJSON struct {
	Transport string `json:"transport"`
	Bus       string `json:"bus"`
	Broker    string `json:"broker"`
}

// ReservoirJSON is the JSON representation of one reservoir. Level is null
// until a sample has been accepted.
type ReservoirJSON struct {
	Level      *int   `json:"level"`
	Mismatches int    `json:"mismatches"`
	LastReport string `json:"last_report,omitempty"`
	Reports    int    `json:"reports,omitempty"`
}

// PumpJSON reports the pump state.
type PumpJSON struct {
	State    string `json:"state"`
	Commands int    `json:"commands"`
	Fresh    bool   `json:"fresh"`
}

// CountsJSON reports bus and hardware counters.
type CountsJSON struct {
	Published     int `json:"published"`
	PublishErrors int `json:"publish_errors"`
	GPIOErrors    int `json:"gpio_errors"`
	Malformed     int `json:"malformed_payloads"`
}

// ConfigJSON is the JSON representation of unit config.
type ConfigJSON struct {
	CycleMs           int64  `json:"cycle_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	DebounceThreshold int    `json:"debounce_threshold"`
	FreshnessMaxAgeMs int64  `json:"freshness_max_age_ms"`
	Broker            string `json:"broker"`
	HTTPAddr          string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Role:          snap.Config.Role,
		UnitID:        snap.Config.UnitID,
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Connectivity: ConnectivityJSON{
			Transport: snap.Transport.String(),
			Bus:       snap.Bus.String(),
			Broker:    snap.Config.Broker,
		},
		Counts: CountsJSON{
			Published:     snap.Published,
			PublishErrors: snap.PublishErrors,
			GPIOErrors:    snap.GPIOErrors,
			Malformed:     snap.Malformed,
		},
		Config: ConfigJSON{
			CycleMs:           snap.Config.CycleMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			DebounceThreshold: snap.Config.DebounceThreshold,
			FreshnessMaxAgeMs: snap.Config.FreshnessMaxAgeMs,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}

	if len(snap.Reservoirs) > 0 {
		inner.Reservoirs = make(map[string]ReservoirJSON, len(snap.Reservoirs))
		for r, res := range snap.Reservoirs {
			inner.Reservoirs[string(r)] = buildReservoir(res)
		}
	}

	if snap.Pump != "" {
		inner.Pump = &PumpJSON{
			State:    string(snap.Pump),
			Commands: snap.PumpCommands,
			Fresh:    snap.Fresh,
		}
	}
	return inner
}

func buildReservoir(res Reservoir) ReservoirJSON {
	out := ReservoirJSON{
		Level:      levelPtr(res.Level),
		Mismatches: res.Mismatches,
		Reports:    res.Reports,
	}
	if !res.LastReport.IsZero() {
		out.LastReport = res.LastReport.UTC().Format(time.RFC3339)
	}
	return out
}

func levelPtr(l logic.Level) *int {
	if !l.IsSet() {
		return nil
	}
	v := l.Value()
	return &v
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
