// Package network implements the link-layer transport watched by the
// connectivity supervisor.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDialTimeout bounds the broker reachability probe.
const DefaultDialTimeout = 5 * time.Second

// ErrNoLink is returned when no usable interface is up.
var ErrNoLink = errors.New("network: no usable interface")

// Config configures a LinkTransport.
type Config struct {
	// Interface is the interface to watch, e.g. "wlan0". Empty means any
	// non-loopback interface.
	Interface string

	// Probe is the host:port dialled by Connect to prove the route works.
	// Empty skips the probe.
	Probe string

	DialTimeout time.Duration
}

// iface is the subset of net.Interface inspected by the transport.
type iface struct {
	name  string
	up    bool
	addrs int
}

// LinkTransport reports whether the host has a working network path to the
// broker. Association and credentials belong to the OS network manager;
// the transport only observes.
type LinkTransport struct {
	cfg Config

	// overridable in tests
	interfaces func() ([]iface, error)
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)

	connected bool
}

// NewLinkTransport creates a transport. It is DOWN until Connect succeeds.
func NewLinkTransport(cfg Config) *LinkTransport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &LinkTransport{
		cfg:        cfg,
		interfaces: systemInterfaces,
		dial:       d.DialContext,
	}
}

// Connect checks the interface and probes the broker address.
func (t *LinkTransport) Connect(ctx context.Context) error {
	t.connected = false

	name, err := t.linkUp()
	if err != nil {
		return err
	}

	if t.cfg.Probe != "" {
		dctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
		conn, err := t.dial(dctx, "tcp", t.cfg.Probe)
		if err != nil {
			return fmt.Errorf("probe %s: %w", t.cfg.Probe, err)
		}
		_ = conn.Close()
	}

	log.Info().Str("interface", name).Str("probe", t.cfg.Probe).Msg("network link up")
	t.connected = true
	return nil
}

// Connected re-checks the interface. A route loss is detected by the
// bus session instead.
func (t *LinkTransport) Connected() bool {
	if !t.connected {
		return false
	}
	if _, err := t.linkUp(); err != nil {
		log.Warn().Err(err).Msg("network link lost")
		t.connected = false
	}
	return t.connected
}

func (t *LinkTransport) linkUp() (string, error) {
	ifs, err := t.interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	for _, i := range ifs {
		if t.cfg.Interface != "" && i.name != t.cfg.Interface {
			continue
		}
		if i.up && i.addrs > 0 {
			return i.name, nil
		}
	}
	if t.cfg.Interface != "" {
		return "", fmt.Errorf("%w: %s is down or has no address", ErrNoLink, t.cfg.Interface)
	}
	return "", ErrNoLink
}

func systemInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]iface, 0, len(ifs))
	for _, i := range ifs {
		if i.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		out = append(out, iface{
			name:  i.Name,
			up:    i.Flags&net.FlagUp != 0,
			addrs: len(addrs),
		})
	}
	return out, nil
}
