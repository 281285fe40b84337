// Package metrics exposes controller state as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

const namespace = "water_level"

// Metrics holds the collectors of one unit on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Level           *prometheus.GaugeVec
	PumpOn          prometheus.Gauge
	LinkState       *prometheus.GaugeVec
	ConnectAttempts *prometheus.CounterVec
	PumpCommands    *prometheus.CounterVec
	Published       *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	Malformed       *prometheus.CounterVec
	Reports         *prometheus.CounterVec
	GPIOErrors      prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level",
			Help:      "Debounced reservoir level (0-4), -1 while unset.",
		}, []string{"reservoir"}),
		PumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "1 when the pump is commanded or driven on.",
		}),
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state",
			Help:      "Connectivity state per layer: 0 down, 1 connecting, 2 up.",
		}, []string{"layer"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts per layer and result.",
		}, []string{"layer", "result"}),
		PumpCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_commands_total",
			Help:      "Pump commands issued or applied, by state.",
		}, []string{"state"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Messages published, by topic.",
		}, []string{"topic"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed publishes, by topic. Failed messages are dropped.",
		}, []string{"topic"}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_payloads_total",
			Help:      "Inbound payloads with at least one undecodable field, by topic.",
		}, []string{"topic"}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_received_total",
			Help:      "Level reports received, by reservoir.",
		}, []string{"reservoir"}),
		GPIOErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gpio_errors_total",
			Help:      "Failed GPIO reads or writes.",
		}),
	}

	m.registry.MustRegister(
		m.Level,
		m.PumpOn,
		m.LinkState,
		m.ConnectAttempts,
		m.PumpCommands,
		m.Published,
		m.PublishErrors,
		m.Malformed,
		m.Reports,
		m.GPIOErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, layer := range []supervisor.Layer{supervisor.LayerTransport, supervisor.LayerBus} {
		m.LinkState.WithLabelValues(string(layer)).Set(float64(supervisor.Down))
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLevel records a debounced level.
func (m *Metrics) ObserveLevel(r logic.Reservoir, l logic.Level) {
	v := -1.0
	if l.IsSet() {
		v = float64(l.Value())
	}
	m.Level.WithLabelValues(string(r)).Set(v)
}

// ObservePump records a pump state change.
func (m *Metrics) ObservePump(s logic.PumpState) {
	m.PumpCommands.WithLabelValues(string(s)).Inc()
	if s == logic.PumpOn {
		m.PumpOn.Set(1)
	} else {
		m.PumpOn.Set(0)
	}
}

// SupervisorHooks feeds connectivity events into the collectors.
func (m *Metrics) SupervisorHooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnAttempt: func(layer supervisor.Layer, err error) {
			result := "success"
			if err != nil {
				result = "failure"
			}
			m.ConnectAttempts.WithLabelValues(string(layer), result).Inc()
		},
		OnChange: func(layer supervisor.Layer, _, to supervisor.State) {
			m.LinkState.WithLabelValues(string(layer)).Set(float64(to))
		},
	}
}
