package mqtt

import "context"

// FakeBus records bus traffic for test assertions.
type FakeBus struct {
	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Connects counts Connect calls.
	Connects int

	// Subscriptions lists every successful Subscribe, in order.
	Subscriptions []string

	// PublishCalls counts every Publish call, successful or not.
	PublishCalls int

	// Published contains every successfully published message.
	Published []Message

	// Closed tracks if Close was called.
	Closed bool

	connected bool
	inbound   []Message
}

// NewFakeBus creates a disconnected FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{}
}

// Connect marks the bus connected unless ConnectError is set.
func (f *FakeBus) Connect(ctx context.Context) error {
	f.Connects++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.connected = true
	return nil
}

// Connected reports the simulated session state.
func (f *FakeBus) Connected() bool {
	return f.connected
}

// DropSession simulates a broker-side disconnect.
func (f *FakeBus) DropSession() {
	f.connected = false
}

// Subscribe records the topic.
func (f *FakeBus) Subscribe(topic string) error {
	if !f.connected {
		return ErrNotConnected
	}
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscriptions = append(f.Subscriptions, topic)
	return nil
}

// Publish records the message.
func (f *FakeBus) Publish(topic string, payload []byte) error {
	f.PublishCalls++
	if !f.connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Topic: topic, Payload: payload})
	return nil
}

// Deliver queues an inbound message for the next Drain.
func (f *FakeBus) Deliver(topic string, payload []byte) {
	f.inbound = append(f.inbound, Message{Topic: topic, Payload: payload})
}

// Drain returns queued inbound messages.
func (f *FakeBus) Drain() []Message {
	out := f.inbound
	f.inbound = nil
	return out
}

// PublishedOn returns the payloads published to topic.
func (f *FakeBus) PublishedOn(topic string) [][]byte {
	var out [][]byte
	for _, m := range f.Published {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Close marks the bus closed and disconnected.
func (f *FakeBus) Close() error {
	f.connected = false
	f.Closed = true
	return nil
}
