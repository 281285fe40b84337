// Package config handles water-level controller configuration loading.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logic"
	"github.com/henrique-kyke/water-level-controller/internal/mqtt"
	"github.com/henrique-kyke/water-level-controller/internal/supervisor"
)

// Role selects which control loop the binary runs.
type Role string

const (
	RoleProbe   Role = "probe"
	RoleMonitor Role = "monitor"
	RoleRelay   Role = "relay"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/water-level/config.yaml, /etc/water-level/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "water-level", "config.yaml"))
	}

	paths = append(paths, "/etc/water-level/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all controller configuration.
type Config struct {
	Role      Role            `yaml:"role"`
	UnitID    string          `yaml:"unit_id"`
	Reservoir logic.Reservoir `yaml:"reservoir"` // probe role only
	LogLevel  string          `yaml:"log_level"`
	LogFile   string          `yaml:"log_file"`

	CycleInterval time.Duration `yaml:"cycle_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"` // 0 disables
	HTTPAddr      string        `yaml:"http_addr"` // empty disables

	Broker    BrokerConfig    `yaml:"broker"`
	Topics    TopicsConfig    `yaml:"topics"`
	Network   NetworkConfig   `yaml:"network"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Debounce  DebounceConfig  `yaml:"debounce"`
	Pump      PumpConfig      `yaml:"pump"`
	Freshness FreshnessConfig `yaml:"freshness"`
	GPIO      GPIOConfig      `yaml:"gpio"`
}

// BrokerConfig configures the MQTT session.
type BrokerConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	TLS                bool          `yaml:"tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CAFile             string        `yaml:"ca_file"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	ClientID           string        `yaml:"client_id"` // default: unit_id
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	PublishTimeout     time.Duration `yaml:"publish_timeout"`
	InboxSize          int           `yaml:"inbox_size"`
}

// URL returns the paho broker URL.
func (b BrokerConfig) URL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + b.Address()
}

// Address returns host:port.
func (b BrokerConfig) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// TopicsConfig names the topics exchanged by the units.
type TopicsConfig struct {
	MainProbe string `yaml:"main_probe"`
	AuxProbe  string `yaml:"aux_probe"`
	Pump      string `yaml:"pump"`
}

// ProbeTopic returns the report topic for reservoir r.
func (t TopicsConfig) ProbeTopic(r logic.Reservoir) string {
	if r == logic.ReservoirAux {
		return t.AuxProbe
	}
	return t.MainProbe
}

// NetworkConfig configures the link transport.
type NetworkConfig struct {
	Interface   string        `yaml:"interface"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ReconnectConfig holds the retry policy of each layer.
type ReconnectConfig struct {
	Transport PolicyConfig `yaml:"transport"`
	Bus       PolicyConfig `yaml:"bus"`
}

// PolicyConfig is the YAML form of a supervisor.RetryPolicy.
type PolicyConfig struct {
	Mode        supervisor.Mode `yaml:"mode"`
	MaxAttempts int             `yaml:"max_attempts"`
	Interval    time.Duration   `yaml:"interval"`
	MaxInterval time.Duration   `yaml:"max_interval"`
	Multiplier  float64         `yaml:"multiplier"`
}

// Policy converts to the supervisor type.
func (p PolicyConfig) Policy() supervisor.RetryPolicy {
	return supervisor.RetryPolicy{
		Mode:        p.Mode,
		MaxAttempts: p.MaxAttempts,
		Interval:    p.Interval,
		MaxInterval: p.MaxInterval,
		Multiplier:  p.Multiplier,
	}
}

func policyConfig(p supervisor.RetryPolicy) PolicyConfig {
	return PolicyConfig{
		Mode:        p.Mode,
		MaxAttempts: p.MaxAttempts,
		Interval:    p.Interval,
		MaxInterval: p.MaxInterval,
		Multiplier:  p.Multiplier,
	}
}

// DebounceConfig configures the level debouncers.
type DebounceConfig struct {
	Threshold int `yaml:"threshold"`
}

// PumpConfig configures the pump hysteresis.
type PumpConfig struct {
	MainOnBelow    int             `yaml:"main_on_below"`
	MainOffAt      int             `yaml:"main_off_at"`
	AuxSupplyAbove int             `yaml:"aux_supply_above"`
	InitialState   logic.PumpState `yaml:"initial_state"`
}

// Thresholds converts to the logic type.
func (p PumpConfig) Thresholds() logic.PumpThresholds {
	return logic.PumpThresholds{
		MainOnBelow:    p.MainOnBelow,
		MainOffAt:      p.MainOffAt,
		AuxSupplyAbove: p.AuxSupplyAbove,
	}
}

// FreshnessConfig configures the report freshness check.
type FreshnessConfig struct {
	// MaxAge is the oldest acceptable report. 0 disables the check.
	MaxAge time.Duration `yaml:"max_age"`

	// ReportZone is the IANA zone of report timestamps without an offset,
	// as sent by the firmware probes. Empty means the host's local zone.
	ReportZone string `yaml:"report_zone"`
}

// Location resolves ReportZone.
func (f FreshnessConfig) Location() (*time.Location, error) {
	if f.ReportZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(f.ReportZone)
}

// GPIOConfig describes the wiring. Pin numbers are line offsets on Chip.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Switches  []int  `yaml:"switches"`
	Bias      string `yaml:"bias"`
	ActiveLow bool   `yaml:"active_low"`

	// LocalPanel makes a monitor read the main reservoir from its own switches.
	LocalPanel bool `yaml:"local_panel"`

	Relay           int  `yaml:"relay"`
	RelayActiveHigh bool `yaml:"relay_active_high"`
}

// Panel returns the gpio panel configuration.
func (g GPIOConfig) Panel() gpio.PanelConfig {
	return gpio.PanelConfig{
		Chip:      g.Chip,
		Pins:      g.Switches,
		Bias:      g.Bias,
		ActiveLow: g.ActiveLow,
	}
}

// RelayOutput returns the gpio relay configuration.
func (g GPIOConfig) RelayOutput() gpio.RelayConfig {
	return gpio.RelayConfig{
		Chip:       g.Chip,
		Pin:        g.Relay,
		ActiveHigh: g.RelayActiveHigh,
	}
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Role:          RoleProbe,
		Reservoir:     logic.ReservoirMain,
		LogLevel:      "info",
		CycleInterval: 5 * time.Second,
		Heartbeat:     time.Minute,
		HTTPAddr:      ":8080",
		Broker: BrokerConfig{
			Port:           8883,
			TLS:            true,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			InboxSize:      mqtt.DefaultInboxSize,
		},
		Topics: TopicsConfig{
			MainProbe: mqtt.TopicMainProbe,
			AuxProbe:  mqtt.TopicAuxProbe,
			Pump:      mqtt.TopicPump,
		},
		Reconnect: ReconnectConfig{
			Transport: policyConfig(supervisor.DefaultTransportPolicy()),
			Bus:       policyConfig(supervisor.DefaultBusPolicy()),
		},
		Debounce: DebounceConfig{Threshold: logic.DefaultConfirmThreshold},
		Pump: PumpConfig{
			MainOnBelow:    logic.DefaultPumpThresholds().MainOnBelow,
			MainOffAt:      logic.DefaultPumpThresholds().MainOffAt,
			AuxSupplyAbove: logic.DefaultPumpThresholds().AuxSupplyAbove,
			InitialState:   logic.PumpOn,
		},
		GPIO: GPIOConfig{
			Chip:            "gpiochip0",
			Switches:        append([]int(nil), gpio.DefaultSwitchPins...),
			Bias:            gpio.BiasPullDown,
			Relay:           gpio.DefaultRelayPin,
			RelayActiveHigh: true,
		},
	}
}

// Load reads configuration from a YAML file on top of Default().
// ${VAR} references are expanded from the environment before parsing;
// any other $ is kept literally.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with its value, empty if unset. A bare $name
// is not a reference, so passwords containing $ survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Parse decodes YAML configuration on top of Default().
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = cfg.UnitID
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to zerolog, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Role {
	case RoleProbe:
		if c.Reservoir != logic.ReservoirMain && c.Reservoir != logic.ReservoirAux {
			add("reservoir: must be main or aux, got %q", c.Reservoir)
		}
	case RoleMonitor, RoleRelay:
	default:
		add("role: must be probe, monitor or relay, got %q", c.Role)
	}

	if c.UnitID == "" {
		add("unit_id: required")
	}
	if c.CycleInterval <= 0 {
		add("cycle_interval: must be positive")
	}
	if c.Heartbeat < 0 {
		add("heartbeat: must not be negative")
	}

	if c.Broker.Host == "" {
		add("broker.host: required")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		add("broker.port: %d out of range", c.Broker.Port)
	}
	if c.Broker.CAFile != "" && !c.Broker.TLS {
		add("broker.ca_file: set but broker.tls is false")
	}

	if c.Topics.MainProbe == "" || c.Topics.AuxProbe == "" || c.Topics.Pump == "" {
		add("topics: main_probe, aux_probe and pump are required")
	}

	if err := c.Reconnect.Transport.Policy().Validate(); err != nil {
		add("reconnect.transport: %w", err)
	}
	if err := c.Reconnect.Bus.Policy().Validate(); err != nil {
		add("reconnect.bus: %w", err)
	}

	if c.Debounce.Threshold < 1 {
		add("debounce.threshold: must be >= 1, got %d", c.Debounce.Threshold)
	}
	if _, ok := logic.ParsePumpState(string(c.Pump.InitialState)); !ok {
		add("pump.initial_state: must be ON or OFF, got %q", c.Pump.InitialState)
	}
	if c.Freshness.MaxAge < 0 {
		add("freshness.max_age: must not be negative")
	}
	if _, err := c.Freshness.Location(); err != nil {
		add("freshness.report_zone: %w", err)
	}

	errs = append(errs, c.validateGPIO()...)
	return errors.Join(errs...)
}

func (c *Config) validateGPIO() []error {
	var errs []error

	usesPanel := c.Role == RoleProbe || (c.Role == RoleMonitor && c.GPIO.LocalPanel)
	usesRelay := c.Role == RoleRelay

	if usesPanel {
		if len(c.GPIO.Switches) != gpio.SwitchCount {
			errs = append(errs, fmt.Errorf("gpio.switches: need %d pins, got %d", gpio.SwitchCount, len(c.GPIO.Switches)))
		}
		switch c.GPIO.Bias {
		case gpio.BiasPullDown, gpio.BiasPullUp, gpio.BiasDisabled:
		default:
			errs = append(errs, fmt.Errorf("gpio.bias: unknown value %q", c.GPIO.Bias))
		}
	}

	usedPins := map[int]string{}
	claim := func(pin int, name string) {
		if pin < 0 {
			errs = append(errs, fmt.Errorf("gpio.%s: negative pin %d", name, pin))
			return
		}
		if other, exists := usedPins[pin]; exists {
			errs = append(errs, fmt.Errorf("gpio.%s and gpio.%s both use pin %d", name, other, pin))
			return
		}
		usedPins[pin] = name
	}
	if usesPanel {
		for i, pin := range c.GPIO.Switches {
			claim(pin, fmt.Sprintf("switches[%d]", i))
		}
	}
	if usesRelay {
		claim(c.GPIO.Relay, "relay")
	}
	return errs
}
