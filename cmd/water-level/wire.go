package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/config"
	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/metrics"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
	"github.com/henrique-kyke/water-level-controller/internal/network"
	"github.com/henrique-kyke/water-level-controller/internal/status"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
	"github.com/henrique-kyke/water-level-controller/internal/unit"
)

// system is a fully wired unit and the resources it holds.
type system struct {
	unit    unit.Unit
	closers []io.Closer
}

// Close releases hardware first, then the bus.
func (s *system) Close() error {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
	return nil
}

// build wires the configured role. sleep paces reconnect attempts.
func build(cfg *config.Config, m *metrics.Metrics, tracker *status.Tracker, sleep supervisor.Sleeper) (*system, error) {
	sys := &system{}

	bus, err := newBus(cfg)
	if err != nil {
		return nil, err
	}
	sys.closers = append(sys.closers, bus)

	transport := network.NewLinkTransport(network.Config{
		Interface:   cfg.Network.Interface,
		Probe:       cfg.Broker.Address(),
		DialTimeout: cfg.Network.DialTimeout,
	})

	sup := supervisor.New(transport, bus, supervisor.Config{
		TransportPolicy: cfg.Reconnect.Transport.Policy(),
		BusPolicy:       cfg.Reconnect.Bus.Policy(),
		Topics:          subscriptions(cfg),
		Sleep:           sleep,
		Hooks:           supervisor.Combine(m.SupervisorHooks(), tracker.SupervisorHooks()),
	})

	deps := unit.Deps{
		UnitID:    cfg.UnitID,
		Bus:       bus,
		Gate:      sup,
		Tracker:   tracker,
		Metrics:   m,
		Heartbeat: cfg.Heartbeat,
	}

	switch cfg.Role {
	case config.RoleProbe:
		panel, err := gpio.NewRealPanel(cfg.GPIO.Panel())
		if err != nil {
			sys.Close()
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		sys.closers = append(sys.closers, panel)
		sys.unit = unit.NewProbe(unit.ProbeConfig{
			Reservoir: cfg.Reservoir,
			Topic:     cfg.Topics.ProbeTopic(cfg.Reservoir),
			Threshold: cfg.Debounce.Threshold,
		}, panel, deps)

	case config.RoleMonitor:
		var panel gpio.Panel
		if cfg.GPIO.LocalPanel {
			p, err := gpio.NewRealPanel(cfg.GPIO.Panel())
			if err != nil {
				sys.Close()
				return nil, fmt.Errorf("init gpio: %w", err)
			}
			sys.closers = append(sys.closers, p)
			panel = p
		}
		sys.unit = unit.NewMonitor(monitorConfig(cfg), panel, deps)

	case config.RoleRelay:
		relay, err := gpio.NewRealRelay(cfg.GPIO.RelayOutput())
		if err != nil {
			sys.Close()
			return nil, fmt.Errorf("init relay: %w", err)
		}
		sys.closers = append(sys.closers, relay)
		sys.unit = unit.NewRelay(cfg.Topics.Pump, relay, deps)

	default:
		sys.Close()
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}

	return sys, nil
}

func newBus(cfg *config.Config) (*mqtt.RealBus, error) {
	opts := mqtt.Options{
		Broker:         cfg.Broker.URL(),
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
		WillTopic:      mqtt.StatusTopic(cfg.UnitID),
		InboxSize:      cfg.Broker.InboxSize,
	}
	if cfg.Role == config.RoleMonitor {
		// a relay that starts after the monitor still gets the last command
		opts.RetainTopics = []string{cfg.Topics.Pump}
	}
	if cfg.Broker.TLS {
		tlsCfg, err := mqtt.TLSConfig(cfg.Broker.Host, cfg.Broker.CAFile, cfg.Broker.InsecureSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("broker tls: %w", err)
		}
		if cfg.Broker.InsecureSkipVerify {
			log.Warn().Msg("broker certificate verification disabled")
		}
		opts.TLS = tlsCfg
	}
	return mqtt.NewRealBus(opts)
}

func monitorConfig(cfg *config.Config) unit.MonitorConfig {
	zone, _ := cfg.Freshness.Location() // checked by Validate
	return unit.MonitorConfig{
		MainTopic:  cfg.Topics.MainProbe,
		AuxTopic:   cfg.Topics.AuxProbe,
		PumpTopic:  cfg.Topics.Pump,
		Threshold:  cfg.Debounce.Threshold,
		Thresholds: cfg.Pump.Thresholds(),
		Seed:       cfg.Pump.InitialState,
		MaxAge:     cfg.Freshness.MaxAge,
		ReportZone: zone,
	}
}

// subscriptions returns the topics the role consumes.
func subscriptions(cfg *config.Config) []string {
	switch cfg.Role {
	case config.RoleMonitor:
		return monitorConfig(cfg).Topics(cfg.GPIO.LocalPanel)
	case config.RoleRelay:
		return []string{cfg.Topics.Pump}
	}
	return nil
}

// trackedReservoirs returns the reservoirs shown in the unit status.
func trackedReservoirs(cfg *config.Config) []logic.Reservoir {
	switch cfg.Role {
	case config.RoleProbe:
		return []logic.Reservoir{cfg.Reservoir}
	case config.RoleMonitor:
		return []logic.Reservoir{logic.ReservoirMain, logic.ReservoirAux}
	}
	return nil
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Role:              string(cfg.Role),
		UnitID:            cfg.UnitID,
		CycleMs:           cfg.CycleInterval.Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Milliseconds(),
		DebounceThreshold: cfg.Debounce.Threshold,
		FreshnessMaxAgeMs: cfg.Freshness.MaxAge.Milliseconds(),
		Broker:            cfg.Broker.URL(),
		HTTPAddr:          cfg.HTTPAddr,
	}
}
