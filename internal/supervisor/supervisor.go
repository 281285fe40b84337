// Package supervisor owns the layered connectivity state of a unit: the
// network transport underneath, and the message-bus session on top of it.
//
// The control loop calls [Supervisor.Step] once per cycle. Step performs at
// most one kind of connect work per cycle (transport first, then the bus
// session plus its subscriptions) and only returns true once both layers are
// up. Callers must not publish or consume bus messages in a cycle where Step
// returned false.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// State is the connection state of one layer.
type State int

const (
	Down State = iota
	Connecting
	Up
)

func (s State) String() string {
	switch s {
	case Down:
		return "DOWN"
	case Connecting:
		return "CONNECTING"
	case Up:
		return "UP"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Layer names a supervised connection layer.
type Layer string

const (
	LayerTransport Layer = "transport"
	LayerBus       Layer = "bus"
)

// Transport is the network connection beneath the bus.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
}

// Session is the message-bus session.
type Session interface {
	Connect(ctx context.Context) error
	Connected() bool
	Subscribe(topic string) error
}

// Hooks receive connectivity events for metrics and status. All are optional
// and are called on the control-loop goroutine.
type Hooks struct {
	// OnAttempt is called after every connect attempt; err is nil on success.
	OnAttempt func(layer Layer, err error)

	// OnChange is called when a layer changes state.
	OnChange func(layer Layer, from, to State)
}

// Combine returns hooks that call each of hs in order.
func Combine(hs ...Hooks) Hooks {
	return Hooks{
		OnAttempt: func(layer Layer, err error) {
			for _, h := range hs {
				if h.OnAttempt != nil {
					h.OnAttempt(layer, err)
				}
			}
		},
		OnChange: func(layer Layer, from, to State) {
			for _, h := range hs {
				if h.OnChange != nil {
					h.OnChange(layer, from, to)
				}
			}
		},
	}
}

// Config configures a Supervisor.
type Config struct {
	TransportPolicy RetryPolicy
	BusPolicy       RetryPolicy

	// Topics are (re-)subscribed after every successful bus connect.
	Topics []string

	// Sleep waits between attempts. Defaults to SleepContext.
	Sleep Sleeper

	Hooks Hooks
}

// Supervisor drives reconnects and gates bus work.
// Not safe for concurrent use; it is owned by the control loop.
type Supervisor struct {
	transport Transport
	session   Session
	cfg       Config

	transportState State
	busState       State
}

var errTransportLost = errors.New("transport went down")

// New creates a Supervisor with both layers DOWN.
func New(transport Transport, session Session, cfg Config) *Supervisor {
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	return &Supervisor{
		transport: transport,
		session:   session,
		cfg:       cfg,
	}
}

// TransportState returns the current transport state.
func (s *Supervisor) TransportState() State {
	return s.transportState
}

// BusState returns the current bus state.
func (s *Supervisor) BusState() State {
	return s.busState
}

// Ready reports whether both layers are UP.
func (s *Supervisor) Ready() bool {
	return s.transportState == Up && s.busState == Up
}

// Step advances the connectivity state machine by one cycle and reports
// whether the cycle may perform bus work.
func (s *Supervisor) Step(ctx context.Context) bool {
	s.refresh()

	switch {
	case s.transportState != Up:
		s.connectTransport(ctx)
		return false
	case s.busState != Up:
		s.connectBus(ctx)
		return false
	}
	return true
}

// refresh downgrades layers whose collaborators report a lost connection.
func (s *Supervisor) refresh() {
	if s.transportState == Up && !s.transport.Connected() {
		log.Warn().Msg("transport lost")
		s.setTransport(Down)
	}
	if s.busState == Up && !s.session.Connected() {
		log.Warn().Msg("bus session lost")
		s.setBus(Down)
	}
}

func (s *Supervisor) connectTransport(ctx context.Context) {
	s.setTransport(Connecting)

	attempts, err := retry(ctx, s.cfg.TransportPolicy, s.cfg.Sleep, func(ctx context.Context, n int) error {
		err := s.transport.Connect(ctx)
		s.attempted(LayerTransport, n, err)
		return err
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Msg("transport unavailable, will retry next cycle")
		s.setTransport(Down)
		return
	}

	log.Info().Int("attempts", attempts).Msg("transport connected")
	s.setTransport(Up)
}

func (s *Supervisor) connectBus(ctx context.Context) {
	s.setBus(Connecting)

	attempts, err := retry(ctx, s.cfg.BusPolicy, s.cfg.Sleep, func(ctx context.Context, n int) error {
		if !s.transport.Connected() {
			return stop(errTransportLost)
		}
		err := s.session.Connect(ctx)
		if err == nil {
			err = s.subscribeAll()
		}
		s.attempted(LayerBus, n, err)
		return err
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Msg("bus unavailable, will retry next cycle")
		s.setBus(Down)
		if errors.Is(err, errTransportLost) {
			s.setTransport(Down)
		}
		return
	}

	log.Info().Int("attempts", attempts).Strs("topics", s.cfg.Topics).Msg("bus connected")
	s.setBus(Up)
}

func (s *Supervisor) subscribeAll() error {
	for _, topic := range s.cfg.Topics {
		if err := s.session.Subscribe(topic); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (s *Supervisor) attempted(layer Layer, n int, err error) {
	if err != nil {
		log.Warn().Err(err).Str("layer", string(layer)).Int("attempt", n).Msg("connect attempt failed")
	}
	if s.cfg.Hooks.OnAttempt != nil {
		s.cfg.Hooks.OnAttempt(layer, err)
	}
}

func (s *Supervisor) setTransport(to State) {
	// the bus cannot be up without a transport
	if to != Up && s.busState != Down {
		s.setBus(Down)
	}

	from := s.transportState
	s.transportState = to
	s.changed(LayerTransport, from, to)
}

func (s *Supervisor) setBus(to State) {
	from := s.busState
	s.busState = to
	s.changed(LayerBus, from, to)
}

func (s *Supervisor) changed(layer Layer, from, to State) {
	if from == to {
		return
	}
	log.Debug().Str("layer", string(layer)).Stringer("from", from).Stringer("to", to).Msg("connectivity state changed")
	if s.cfg.Hooks.OnChange != nil {
		s.cfg.Hooks.OnChange(layer, from, to)
	}
}
