package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
	"github.com/nerrad567/graychat/internal/session"
)

// memBroker is an in-process broker with exact-match topic routing.
type memBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memTransport]mqtt.MessageHandler
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string]map[*memTransport]mqtt.MessageHandler)}
}

// dialer returns a session.Dialer whose transports attach to b.
func (b *memBroker) dialer() session.Dialer {
	return func(string, int) (session.Transport, error) {
		return &memTransport{broker: b}, nil
	}
}

func (b *memBroker) publish(topic string, payload []byte) {
	b.mu.Lock()
	handlers := make([]mqtt.MessageHandler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, append([]byte(nil), payload...)) //nolint:errcheck // Delivery errors are the subscriber's concern
	}
}

func (b *memBroker) subscribe(t *memTransport, topic string, h mqtt.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memTransport]mqtt.MessageHandler)
	}
	b.subs[topic][t] = h
}

func (b *memBroker) unsubscribe(t *memTransport, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], t)
}

func (b *memBroker) detach(t *memTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		delete(subs, t)
	}
}

// memTransport implements session.Transport on a memBroker.
type memTransport struct {
	broker *memBroker

	mu        sync.Mutex
	connected bool
	onLost    func(error)
}

func (t *memTransport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *memTransport) Disconnect() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.broker.detach(t)
}

func (t *memTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *memTransport) Subscribe(topic string, handler mqtt.MessageHandler) error {
	if !t.IsConnected() {
		return mqtt.ErrNotConnected
	}
	t.broker.subscribe(t, topic, handler)
	return nil
}

func (t *memTransport) Unsubscribe(topic string) error {
	if !t.IsConnected() {
		return mqtt.ErrNotConnected
	}
	t.broker.unsubscribe(t, topic)
	return nil
}

func (t *memTransport) Publish(topic string, payload []byte) error {
	if !t.IsConnected() {
		return mqtt.ErrNotConnected
	}
	t.broker.publish(topic, payload)
	return nil
}

func (t *memTransport) SetOnConnectionLost(callback func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = callback
}

// failingPublisher fails the first failures calls, then succeeds.
type failingPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	payloads [][]byte
}

var errBrokerDown = errors.New("broker down")

func (p *failingPublisher) Publish(_ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errBrokerDown
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *failingPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
