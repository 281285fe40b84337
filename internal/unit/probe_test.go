package unit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

func probeConfig() ProbeConfig {
	return ProbeConfig{
		Reservoir: logic.ReservoirAux,
		Topic:     mqtt.TopicAuxProbe,
		Threshold: logic.DefaultConfirmThreshold,
	}
}

func panelOf(levels ...int) *gpio.FakePanel {
	samples := make([]gpio.Switches, len(levels))
	for i, n := range levels {
		samples[i] = gpio.SwitchesForLevel(n)
	}
	return gpio.NewFakePanel(samples...)
}

func reportedLevels(t *testing.T, bus *mqtt.FakeBus, topic string) []int {
	t.Helper()
	var out []int
	for _, p := range bus.PublishedOn(topic) {
		var r mqtt.LevelReport
		require.NoError(t, json.Unmarshal(p, &r))
		out = append(out, r.Level)
	}
	return out
}

func TestProbePublishesStableLevel(t *testing.T) {
	h := newHarness(true)
	p := NewProbe(probeConfig(), panelOf(2), h.deps())

	p.Cycle(context.Background(), t0)

	assert.Equal(t, []int{2}, reportedLevels(t, h.bus, mqtt.TopicAuxProbe))
	assert.Equal(t, []string{EventStartup}, statusEvents(t, h.bus, "test"))

	var r mqtt.LevelReport
	require.NoError(t, json.Unmarshal(h.bus.PublishedOn(mqtt.TopicAuxProbe)[0], &r))
	assert.Equal(t, mqtt.LevelReport{Sensor1: 1, Sensor2: 1, Level: 2, Timestamp: "2026-03-01T12:00:00Z"}, r)
}

func TestProbeDebouncesBeforePublishing(t *testing.T) {
	h := newHarness(true)
	p := NewProbe(probeConfig(), panelOf(1, 2, 2, 2, 2, 2, 2), h.deps())

	for i := 0; i < 7; i++ {
		p.Cycle(context.Background(), t0.Add(time.Duration(i)*5*time.Second))
	}

	assert.Equal(t, []int{1, 1, 1, 1, 1, 2, 2}, reportedLevels(t, h.bus, mqtt.TopicAuxProbe))
}

func TestProbeSamplesWhileGateClosed(t *testing.T) {
	h := newHarness(false)
	p := NewProbe(probeConfig(), panelOf(3, 3, 0, 0, 0, 0, 0), h.deps())

	for i := 0; i < 7; i++ {
		p.Cycle(context.Background(), t0)
	}

	assert.Equal(t, 0, h.bus.PublishCalls)
	assert.Equal(t, 7, h.gate.steps)
	assert.Equal(t, logic.LevelOf(0), p.Stable(), "debouncing continues offline")

	h.gate.open = true
	p.Cycle(context.Background(), t0)
	assert.Equal(t, []int{0}, reportedLevels(t, h.bus, mqtt.TopicAuxProbe), "only the current reading is sent")
}

func TestProbeReadErrorKeepsLastLevel(t *testing.T) {
	h := newHarness(true)
	panel := panelOf(4)
	p := NewProbe(probeConfig(), panel, h.deps())

	p.Cycle(context.Background(), t0)
	panel.ReadError = errors.New("line busy")
	p.Cycle(context.Background(), t0.Add(5*time.Second))

	assert.Equal(t, []int{4, 4}, reportedLevels(t, h.bus, mqtt.TopicAuxProbe))
	assert.Equal(t, 1, h.tracker.Snapshot().GPIOErrors)
}

func TestProbeNothingToReportBeforeFirstRead(t *testing.T) {
	h := newHarness(true)
	panel := panelOf(1)
	panel.ReadError = errors.New("line busy")
	p := NewProbe(probeConfig(), panel, h.deps())

	p.Cycle(context.Background(), t0)
	assert.Empty(t, h.bus.PublishedOn(mqtt.TopicAuxProbe))
}

func TestProbePublishFailureIsDropped(t *testing.T) {
	h := newHarness(true)
	p := NewProbe(probeConfig(), panelOf(1, 2), h.deps())

	h.bus.PublishError = errors.New("timeout")
	p.Cycle(context.Background(), t0)
	h.bus.PublishError = nil
	p.Cycle(context.Background(), t0.Add(5*time.Second))

	// the failed report is not resent
	reports := h.bus.PublishedOn(mqtt.TopicAuxProbe)
	require.Len(t, reports, 1)
	var r mqtt.LevelReport
	require.NoError(t, json.Unmarshal(reports[0], &r))
	assert.Equal(t, "2026-03-01T12:00:05Z", r.Timestamp)
	assert.Equal(t, 2, h.tracker.Snapshot().PublishErrors, "startup and report")
}

func TestProbeTracksLevel(t *testing.T) {
	h := newHarness(false)
	p := NewProbe(probeConfig(), panelOf(3, 1), h.deps())

	p.Cycle(context.Background(), t0)
	p.Cycle(context.Background(), t0)

	res := h.tracker.Snapshot().Reservoirs[logic.ReservoirAux]
	assert.Equal(t, logic.LevelOf(3), res.Level)
	assert.Equal(t, 1, res.Mismatches)
}

// Drives a real supervisor from DOWN to UP and checks that the probe never
// touches the bus before both layers are UP.
func TestProbeGatingThroughSupervisor(t *testing.T) {
	transport := &linkTransport{failures: 2}
	bus := &guardBus{FakeBus: mqtt.NewFakeBus(), t: t, transport: transport}
	bus.ConnectError = errors.New("broker down")

	sup := supervisor.New(transport, bus, supervisor.Config{
		TransportPolicy: supervisor.RetryPolicy{Mode: supervisor.Bounded, MaxAttempts: 1},
		BusPolicy:       supervisor.RetryPolicy{Mode: supervisor.Bounded, MaxAttempts: 2},
		Sleep:           noSleep,
	})
	bus.supervisor = sup

	h := newHarness(true)
	d := h.deps()
	d.Bus = bus
	d.Gate = sup
	p := NewProbe(probeConfig(), panelOf(2), d)

	// transport fails twice, succeeds, then the bus fails one cycle
	for i := 0; i < 4; i++ {
		p.Cycle(context.Background(), t0)
		assert.Equal(t, 0, bus.PublishCalls, "cycle %d", i)
	}
	assert.Equal(t, supervisor.Up, sup.TransportState())
	assert.NotEqual(t, supervisor.Up, sup.BusState())

	bus.ConnectError = nil
	p.Cycle(context.Background(), t0) // bus connects
	assert.Equal(t, 0, bus.PublishCalls)
	require.True(t, sup.Ready())

	p.Cycle(context.Background(), t0)
	assert.Equal(t, []int{2}, reportedLevels(t, bus.FakeBus, mqtt.TopicAuxProbe))
}
