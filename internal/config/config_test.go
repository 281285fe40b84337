package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

const probeYAML = `
role: probe
unit_id: tank-main
reservoir: main
broker:
  host: broker.local
  username: probe
  password: ${TEST_WL_PASSWORD}
`

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(probeYAML), 0o600))

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(probeYAML), 0o600))

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(orig) }()

	got, err := FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", got)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_WL_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(probeYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, RoleProbe, cfg.Role)
	assert.Equal(t, "s3cret", cfg.Broker.Password)
	assert.Equal(t, "tank-main", cfg.Broker.ClientID, "client id defaults to unit id")
	assert.Equal(t, "ssl://broker.local:8883", cfg.Broker.URL())
	assert.False(t, cfg.Broker.InsecureSkipVerify)

	assert.Equal(t, 5*time.Second, cfg.CycleInterval)
	assert.Equal(t, logic.DefaultConfirmThreshold, cfg.Debounce.Threshold)
	assert.Equal(t, logic.DefaultPumpThresholds(), cfg.Pump.Thresholds())
	assert.Equal(t, logic.PumpOn, cfg.Pump.InitialState)
	assert.Equal(t, time.Duration(0), cfg.Freshness.MaxAge)
	assert.Equal(t, supervisor.DefaultTransportPolicy(), cfg.Reconnect.Transport.Policy())
	assert.Equal(t, supervisor.DefaultBusPolicy(), cfg.Reconnect.Bus.Policy())
	assert.Equal(t, []int{17, 27, 22, 23}, cfg.GPIO.Switches)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
role: monitor
unit_id: central
cycle_interval: 2s
broker:
  host: 10.0.0.2
  port: 1883
  tls: false
  client_id: central-01
reconnect:
  transport:
    mode: unbounded
    interval: 1s
  bus:
    mode: bounded
    max_attempts: 5
    interval: 500ms
    multiplier: 1.5
    max_interval: 4s
pump:
  main_off_at: 4
  initial_state: "OFF"
freshness:
  max_age: 30s
gpio:
  local_panel: true
  switches: [5, 6, 13, 19]
  bias: pull-up
  active_low: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, RoleMonitor, cfg.Role)
	assert.Equal(t, 2*time.Second, cfg.CycleInterval)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.Broker.URL())
	assert.Equal(t, "central-01", cfg.Broker.ClientID)
	assert.Equal(t, supervisor.Unbounded, cfg.Reconnect.Transport.Mode)
	assert.Equal(t, supervisor.RetryPolicy{
		Mode:        supervisor.Bounded,
		MaxAttempts: 5,
		Interval:    500 * time.Millisecond,
		MaxInterval: 4 * time.Second,
		Multiplier:  1.5,
	}, cfg.Reconnect.Bus.Policy())
	assert.Equal(t, 4, cfg.Pump.MainOffAt)
	assert.Equal(t, logic.PumpOff, cfg.Pump.InitialState)
	assert.Equal(t, 30*time.Second, cfg.Freshness.MaxAge)
	assert.Equal(t, []int{5, 6, 13, 19}, cfg.GPIO.Panel().Pins)
	assert.True(t, cfg.GPIO.Panel().ActiveLow)
}

func TestParseKeepsLiteralDollar(t *testing.T) {
	t.Setenv("TEST_WL_USER", "probe")
	t.Setenv("HOME", "/root")

	cfg, err := Parse([]byte(`
broker:
  username: ${TEST_WL_USER}
  password: "pa$$w0rd$HOME"
  client_id: ${TEST_WL_UNSET}
`))
	require.NoError(t, err)

	assert.Equal(t, "probe", cfg.Broker.Username)
	assert.Equal(t, "pa$$w0rd$HOME", cfg.Broker.Password)
	assert.Empty(t, cfg.Broker.ClientID)
}

func TestParseReportZone(t *testing.T) {
	cfg, err := Parse([]byte(`
freshness:
  report_zone: America/Sao_Paulo
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Freshness.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestReportZoneDefaultsToLocal(t *testing.T) {
	loc, err := Default().Freshness.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("role: [probe"))
	assert.Error(t, err)
}

func TestParseBadDuration(t *testing.T) {
	_, err := Parse([]byte("cycle_interval: soon"))
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := Default()
	cfg.UnitID = "unit"
	cfg.Broker.Host = "broker"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown role", func(c *Config) { c.Role = "pump" }, "role"},
		{"bad reservoir", func(c *Config) { c.Reservoir = "garden" }, "reservoir"},
		{"missing unit", func(c *Config) { c.UnitID = "" }, "unit_id"},
		{"missing host", func(c *Config) { c.Broker.Host = "" }, "broker.host"},
		{"bad port", func(c *Config) { c.Broker.Port = 70000 }, "broker.port"},
		{"ca without tls", func(c *Config) { c.Broker.TLS = false; c.Broker.CAFile = "/ca.pem" }, "ca_file"},
		{"zero cycle", func(c *Config) { c.CycleInterval = 0 }, "cycle_interval"},
		{"empty topic", func(c *Config) { c.Topics.Pump = "" }, "topics"},
		{"bounded without attempts", func(c *Config) { c.Reconnect.Transport.MaxAttempts = 0 }, "reconnect.transport"},
		{"unknown mode", func(c *Config) { c.Reconnect.Bus.Mode = "sometimes" }, "reconnect.bus"},
		{"zero threshold", func(c *Config) { c.Debounce.Threshold = 0 }, "debounce.threshold"},
		{"bad seed", func(c *Config) { c.Pump.InitialState = "on" }, "pump.initial_state"},
		{"three switches", func(c *Config) { c.GPIO.Switches = []int{1, 2, 3} }, "gpio.switches"},
		{"bad bias", func(c *Config) { c.GPIO.Bias = "floating" }, "gpio.bias"},
		{"duplicate switch", func(c *Config) { c.GPIO.Switches = []int{1, 2, 3, 1} }, "both use pin 1"},
		{"negative freshness", func(c *Config) { c.Freshness.MaxAge = -time.Second }, "freshness.max_age"},
		{"unknown zone", func(c *Config) { c.Freshness.ReportZone = "Mars/Olympus" }, "freshness.report_zone"},
		{"growth without ceiling", func(c *Config) { c.Reconnect.Bus.MaxInterval = 0 }, "reconnect.bus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.UnitID = ""
	cfg.Broker.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit_id")
	assert.Contains(t, err.Error(), "broker.host")
}

func TestValidateRelayPinOnlyForRelayRole(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.Relay = 17 // same as switches[0]
	assert.NoError(t, cfg.Validate(), "probe does not drive the relay")

	cfg.Role = RoleRelay
	assert.NoError(t, cfg.Validate(), "relay does not read switches")

	cfg.Role = RoleMonitor
	cfg.GPIO.LocalPanel = true
	cfg.GPIO.Switches = []int{1, 2, 3}
	assert.Error(t, cfg.Validate(), "local panel needs four switches")
}

func TestProbeTopic(t *testing.T) {
	topics := Default().Topics
	assert.Equal(t, topics.MainProbe, topics.ProbeTopic(logic.ReservoirMain))
	assert.Equal(t, topics.AuxProbe, topics.ProbeTopic(logic.ReservoirAux))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, zerolog.TraceLevel, ParseLogLevel("trace"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel("bogus"))
}
