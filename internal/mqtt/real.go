package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"slices"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Options configures a RealBus.
type Options struct {
	// Broker is the broker URL, e.g. "ssl://broker.example.com:8883".
	Broker   string
	ClientID string
	Username string
	Password string

	// TLS is used for ssl://, tls:// and mqtts:// brokers. Nil means plain TCP.
	TLS *tls.Config

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QoS            byte

	// WillTopic, if set, receives an OFFLINE status when the session dies.
	WillTopic string

	// RetainTopics are published with the retained flag so that a client
	// subscribing later still gets the last message.
	RetainTopics []string

	InboxSize int
}

// RealBus talks to an actual MQTT broker. Reconnects are left to the
// caller: the paho client never reconnects on its own.
type RealBus struct {
	client paho.Client
	opts   Options
	inbox  *inbox
}

// NewRealBus creates a bus for the broker in opts. It does not connect.
func NewRealBus(opts Options) (*RealBus, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}

	b := &RealBus{
		opts:  opts,
		inbox: newInbox(opts.InboxSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", opts.Broker).Msg("mqtt connection lost")
		})
	if opts.TLS != nil {
		po.SetTLSConfig(opts.TLS)
	}
	if opts.WillTopic != "" {
		will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
		if err != nil {
			return nil, fmt.Errorf("format will payload: %w", err)
		}
		po.SetBinaryWill(opts.WillTopic, will, 1, true)
	}

	b.client = paho.NewClient(po)
	return b, nil
}

// Connect opens a new session, dropping any existing one first.
func (b *RealBus) Connect(ctx context.Context) error {
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	if err := wait(ctx, b.client.Connect(), b.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", b.opts.Broker, err)
	}
	log.Info().Str("broker", b.opts.Broker).Str("client_id", b.opts.ClientID).Msg("mqtt session established")
	return nil
}

// Connected reports whether the session is open.
func (b *RealBus) Connected() bool {
	return b.client.IsConnectionOpen()
}

// Subscribe registers the inbox handler for topic.
func (b *RealBus) Subscribe(topic string) error {
	if err := wait(context.Background(), b.client.Subscribe(topic, b.opts.QoS, b.receive), b.opts.PublishTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Msg("subscribed")
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it.
func (b *RealBus) Publish(topic string, payload []byte) error {
	if !b.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(context.Background(), b.client.Publish(topic, b.opts.QoS, b.retained(topic), payload), b.opts.PublishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RealBus) retained(topic string) bool {
	return slices.Contains(b.opts.RetainTopics, topic)
}

// Drain returns every message received since the last call.
func (b *RealBus) Drain() []Message {
	return b.inbox.drainAll()
}

// Close disconnects from the broker.
func (b *RealBus) Close() error {
	if b.client.IsConnected() {
		b.client.Disconnect(1000) // 1 second quiesce
	}
	return nil
}

// receive runs on the paho delivery goroutine.
func (b *RealBus) receive(_ paho.Client, m paho.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	b.inbox.push(Message{Topic: m.Topic(), Payload: payload})
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
