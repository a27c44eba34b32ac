package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/graychat/internal/cipher"
	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
)

const testInterval = 20 * time.Millisecond

// fakeTransport is an in-process Transport with scripted connect results.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connectErrs  []error // consumed one per Connect call; empty means success
	alwaysFail   error
	connectCalls int
	subscribes   []string
	unsubscribes []string
	handlers     map[string]mqtt.MessageHandler
	published    map[string][][]byte
	publishErr   error
	subscribeErr error
	healthErr    error
	onSubscribe  func(topic string) // runs after a successful Subscribe, unlocked
	lost         func(error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][][]byte),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.alwaysFail != nil {
		return f.alwaysFail
	}
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(topic string, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return err
	}
	f.subscribes = append(f.subscribes, topic)
	f.handlers[topic] = handler
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		hook(topic)
	}
	return nil
}

func (f *fakeTransport) HealthCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return mqtt.ErrNotConnected
	}
	return f.healthErr
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, topic)
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeTransport) SetOnConnectionLost(callback func(err error)) {
	f.mu.Lock()
	f.lost = callback
	f.mu.Unlock()
}

// drop simulates an unsolicited connection loss.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	lost := f.lost
	f.mu.Unlock()
	lost(err)
}

// inject delivers payload as if it arrived from the broker on topic.
func (f *fakeTransport) inject(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler != nil {
		_ = handler(topic, payload)
	}
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

func testCodec(t *testing.T) cipher.Codec {
	t.Helper()
	key, err := cipher.DeriveKey("correct-horse")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	codec, err := cipher.New(cipher.CodecFernet, key, cipher.Options{})
	if err != nil {
		t.Fatalf("cipher.New() error = %v", err)
	}
	return codec
}

func newTestManager(t *testing.T, transport *fakeTransport) *Manager {
	t.Helper()
	cfg := Config{
		ConnectTimeout:    time.Second,
		ReconnectInterval: testInterval,
		QueueSize:         8,
	}
	m := New(cfg, testCodec(t), func(string, int) (Transport, error) {
		return transport, nil
	})
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

// stateRecorder collects state transitions.
type stateRecorder struct {
	mu          sync.Mutex
	transitions []State
}

func (r *stateRecorder) record(_, to State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, to)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.transitions...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connect(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Connect(context.Background(), "localhost", 1883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

// =============================================================================
// Connect Tests
// =============================================================================

func TestConnect_InvalidAddress(t *testing.T) {
	dialed := false
	m := New(DefaultConfig(), testCodec(t), func(string, int) (Transport, error) {
		dialed = true
		return newFakeTransport(), nil
	})

	tests := []struct {
		name string
		host string
		port int
	}{
		{name: "empty host", host: "", port: 1883},
		{name: "port zero", host: "localhost", port: 0},
		{name: "port too large", host: "localhost", port: 65536},
		{name: "negative port", host: "localhost", port: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Connect(context.Background(), tt.host, tt.port)
			if !errors.Is(err, ErrConnection) {
				t.Errorf("Connect() error = %v, want ErrConnection", err)
			}
		})
	}

	if dialed {
		t.Error("dialer called for an invalid address")
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
}

func TestConnect_Success(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	connect(t, m)

	if m.State() != StateConnected {
		t.Errorf("State() = %v, want connected", m.State())
	}
	want := []State{StateConnecting, StateConnected}
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestConnect_Failure(t *testing.T) {
	transport := newFakeTransport()
	transport.connectErrs = []error{errors.New("connection refused")}
	m := newTestManager(t, transport)
	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	err := m.Connect(context.Background(), "localhost", 1883)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect() error = %v, want ErrConnection", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
	want := []State{StateConnecting, StateDisconnected}
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	// A failed attempt leaves the manager usable.
	connect(t, m)
}

func TestConnect_DialError(t *testing.T) {
	m := New(DefaultConfig(), testCodec(t), func(string, int) (Transport, error) {
		return nil, mqtt.ErrInvalidBroker
	})

	err := m.Connect(context.Background(), "localhost", 1883)
	if !errors.Is(err, ErrConnection) || !errors.Is(err, mqtt.ErrInvalidBroker) {
		t.Errorf("Connect() error = %v, want ErrConnection wrapping ErrInvalidBroker", err)
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	m := newTestManager(t, newFakeTransport())
	connect(t, m)

	if err := m.Connect(context.Background(), "localhost", 1883); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

// =============================================================================
// Subscribe / Publish Tests
// =============================================================================

func TestSubscribe_InvalidTopicBeforeNetwork(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)

	// Rejected even while disconnected: validation comes first.
	if err := m.Subscribe("chat room"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}

	connect(t, m)
	if err := m.Subscribe("chat room"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
	if err := m.Subscribe("chatroom"); err != nil {
		t.Errorf("Subscribe(chatroom) error = %v", err)
	}
	if got := transport.subscribed(); len(got) != 1 || got[0] != "chatroom" {
		t.Errorf("transport subscriptions = %v, want [chatroom]", got)
	}
}

func TestOperations_NotConnected(t *testing.T) {
	m := newTestManager(t, newFakeTransport())

	if err := m.Subscribe("lobby"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := m.Publish("lobby", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := m.Unsubscribe("lobby"); err != nil {
		t.Errorf("Unsubscribe() while disconnected error = %v, want nil", err)
	}
}

func TestPublish(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	payload := []byte("opaque bytes that are not a token")
	if err := m.Publish("lobby", payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := transport.published["lobby"]; len(got) != 1 || string(got[0]) != string(payload) {
		t.Errorf("published = %q, want one payload", got)
	}
	if m.Stats().Published != 1 {
		t.Errorf("Stats().Published = %d, want 1", m.Stats().Published)
	}

	if err := m.Publish("lobby/#", payload); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(wildcard) error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublish_TransportError(t *testing.T) {
	transport := newFakeTransport()
	transport.publishErr = mqtt.ErrPublishFailed
	m := newTestManager(t, transport)
	connect(t, m)

	err := m.Publish("lobby", []byte("x"))
	if !errors.Is(err, ErrPublish) || !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublish wrapping mqtt.ErrPublishFailed", err)
	}
	if m.State() != StateConnected {
		t.Errorf("State() = %v, publish error must not change state", m.State())
	}
}

func TestUnsubscribe_NotRestored(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := m.Unsubscribe("lobby"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	transport.drop(errors.New("network down"))
	waitFor(t, "reconnect", func() bool { return m.State() == StateConnected })

	if got := transport.subscribed(); len(got) != 1 {
		t.Errorf("subscriptions after reconnect = %v, want only the original", got)
	}
}

func TestSubscribe_ConnectionLostDuringSubscribe(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	// The connection drops while the broker is still handling SUBSCRIBE and
	// comes back before the call returns.
	// The restore runs through the same hook, so only the first call drops.
	var dropped atomic.Bool
	transport.onSubscribe = func(string) {
		if !dropped.CompareAndSwap(false, true) {
			return
		}
		transport.drop(errors.New("network down"))
		waitFor(t, "reconnect", func() bool {
			return m.State() == StateConnected && m.Stats().Reconnects == 1
		})
	}

	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	got := transport.subscribed()
	if len(got) != 2 || got[0] != "lobby" || got[1] != "lobby" {
		t.Errorf("subscribe calls = %v, want lobby then lobby restored", got)
	}
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	transport.mu.Lock()
	transport.subscribeErr = mqtt.ErrSubscribeFailed
	transport.mu.Unlock()

	err := m.Subscribe("lobby")
	if !errors.Is(err, ErrSubscribe) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribe", err)
	}

	transport.mu.Lock()
	transport.subscribeErr = nil
	transport.mu.Unlock()

	transport.drop(errors.New("network down"))
	waitFor(t, "reconnect", func() bool {
		return m.State() == StateConnected && m.Stats().Reconnects == 1
	})

	if got := transport.subscribed(); len(got) != 0 {
		t.Errorf("subscriptions after reconnect = %v, want none", got)
	}
}

func TestHealthCheck(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	ctx := context.Background()

	if err := m.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before connect error = %v, want ErrNotConnected", err)
	}

	connect(t, m)
	if err := m.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	transport.mu.Lock()
	transport.healthErr = mqtt.ErrNotConnected
	transport.mu.Unlock()
	if err := m.HealthCheck(ctx); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want the transport's failure", err)
	}

	transport.mu.Lock()
	transport.alwaysFail = errors.New("refused")
	transport.mu.Unlock()
	transport.drop(errors.New("network down"))
	waitFor(t, "reconnecting", func() bool { return m.State() == StateReconnecting })

	if err := m.HealthCheck(ctx); !errors.Is(err, ErrReconnecting) {
		t.Errorf("HealthCheck() while reconnecting error = %v, want ErrReconnecting", err)
	}
}

// =============================================================================
// Reconnect Tests
// =============================================================================

func TestReconnect_RestoresSubscriptions(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	connect(t, m)
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	transport.mu.Lock()
	transport.connectErrs = []error{errors.New("refused"), errors.New("refused")}
	transport.mu.Unlock()

	start := time.Now()
	transport.drop(errors.New("network down"))

	if m.State() != StateReconnecting {
		t.Fatalf("State() = %v, want reconnecting", m.State())
	}

	err := m.Publish("lobby", []byte("x"))
	if !errors.Is(err, ErrReconnecting) || !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() while reconnecting error = %v, want ErrReconnecting", err)
	}

	waitFor(t, "reconnect", func() bool { return m.State() == StateConnected })

	if elapsed := time.Since(start); elapsed < 2*testInterval {
		t.Errorf("reconnected after %v, want at least two intervals of %v", elapsed, testInterval)
	}
	if calls := transport.calls(); calls != 4 {
		t.Errorf("Connect calls = %d, want 4 (initial + 3 attempts)", calls)
	}
	if got := transport.subscribed(); len(got) != 2 || got[1] != "lobby" {
		t.Errorf("subscriptions = %v, want lobby restored", got)
	}

	stats := m.Stats()
	if stats.ReconnectAttempts != 3 || stats.Reconnects != 1 {
		t.Errorf("Stats() attempts=%d reconnects=%d, want 3 and 1", stats.ReconnectAttempts, stats.Reconnects)
	}

	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	waitFor(t, "state notifications", func() bool { return len(rec.get()) == len(want) })
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	if err := m.Publish("lobby", []byte("x")); err != nil {
		t.Errorf("Publish() after reconnect error = %v", err)
	}
}

func TestReconnect_InboundAfterRestore(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	codec := testCodec(t)

	received := make(chan Message, 1)
	m.OnMessage(func(msg Message) { received <- msg })

	connect(t, m)
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	transport.drop(errors.New("network down"))
	waitFor(t, "reconnect", func() bool { return m.State() == StateConnected })

	token, _ := codec.Encrypt([]byte("welcome back"))
	transport.inject("lobby", token)

	select {
	case msg := <-received:
		if msg.Text != "welcome back" {
			t.Errorf("Text = %q", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no message after reconnect")
	}
}

func TestDisconnect_CancelsReconnect(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	transport.mu.Lock()
	transport.alwaysFail = errors.New("refused")
	transport.mu.Unlock()

	transport.drop(errors.New("network down"))
	waitFor(t, "retry", func() bool { return transport.calls() >= 3 })

	done := make(chan struct{})
	go func() {
		_ = m.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disconnect() did not return while reconnecting")
	}

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}

	calls := transport.calls()
	time.Sleep(5 * testInterval)
	if transport.calls() != calls {
		t.Error("reconnect attempts continued after Disconnect")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	rec := &stateRecorder{}

	if err := m.Disconnect(); err != nil {
		t.Errorf("Disconnect() before Connect error = %v", err)
	}

	connect(t, m)
	m.OnStateChange(rec.record)

	for i := 0; i < 3; i++ {
		if err := m.Disconnect(); err != nil {
			t.Errorf("Disconnect() #%d error = %v", i+1, err)
		}
	}

	if transport.IsConnected() {
		t.Error("transport still connected after Disconnect")
	}
	if got := rec.get(); !equalStates(got, []State{StateDisconnected}) {
		t.Errorf("transitions = %v, want a single disconnected", got)
	}

	// Reconnecting from scratch works and starts without old subscriptions.
	connect(t, m)
}

func TestStaleConnectionLostIgnored(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	connect(t, m)

	stale := newFakeTransport()
	m.handleConnectionLost(stale, errors.New("old connection"))

	if m.State() != StateConnected {
		t.Errorf("State() = %v, stale loss must be ignored", m.State())
	}
}

// =============================================================================
// Inbound Tests
// =============================================================================

func TestInbound_DecryptsAndDispatches(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	codec := testCodec(t)

	received := make(chan Message, 4)
	m.OnMessage(func(msg Message) { received <- msg })

	connect(t, m)
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, text := range []string{"hello", "", "second"} {
		token, err := codec.Encrypt([]byte(text))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		transport.inject("lobby", token)

		select {
		case msg := <-received:
			if msg.Text != text || msg.Topic != "lobby" {
				t.Errorf("received %+v, want %q on lobby", msg, text)
			}
			if string(msg.Payload) != string(token) {
				t.Error("Payload should carry the ciphertext as received")
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", text)
		}
	}
}

func TestInbound_DecryptFailureDropped(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	codec := testCodec(t)

	received := make(chan Message, 4)
	m.OnMessage(func(msg Message) { received <- msg })

	var dropReason error
	var dropMu sync.Mutex
	m.OnDrop(func(_ string, _ int, reason error) {
		dropMu.Lock()
		dropReason = reason
		dropMu.Unlock()
	})

	connect(t, m)
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	key, _ := cipher.DeriveKey("another-passphrase")
	other, _ := cipher.New(cipher.CodecFernet, key, cipher.Options{})
	foreign, _ := other.Encrypt([]byte("you cannot read this"))
	notUTF8, _ := codec.Encrypt([]byte{0xff, 0xfe, 0xfd})

	transport.inject("lobby", []byte("plaintext from a misconfigured client"))
	transport.inject("lobby", foreign)
	transport.inject("lobby", notUTF8)

	good, _ := codec.Encrypt([]byte("still here"))
	transport.inject("lobby", good)

	select {
	case msg := <-received:
		if msg.Text != "still here" {
			t.Errorf("first delivered message = %q, want the valid one", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("valid message not delivered after decrypt failures")
	}

	if got := m.Stats().DecryptFailures; got != 3 {
		t.Errorf("Stats().DecryptFailures = %d, want 3", got)
	}
	dropMu.Lock()
	defer dropMu.Unlock()
	if !errors.Is(dropReason, cipher.ErrDecryption) {
		t.Errorf("drop reason = %v, want cipher.ErrDecryption", dropReason)
	}
	if m.State() != StateConnected {
		t.Errorf("State() = %v, decrypt failures must not affect the session", m.State())
	}
}

func TestInbound_QueueFull(t *testing.T) {
	transport := newFakeTransport()
	cfg := Config{ConnectTimeout: time.Second, ReconnectInterval: testInterval, QueueSize: 1}
	m := New(cfg, testCodec(t), func(string, int) (Transport, error) { return transport, nil })
	codec := testCodec(t)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	m.OnMessage(func(Message) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	connect(t, m)
	defer func() {
		close(release)
		_ = m.Disconnect()
	}()
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	token, _ := codec.Encrypt([]byte("x"))
	transport.inject("lobby", token)
	<-started // the dispatcher now holds message 1

	transport.inject("lobby", token) // queued
	transport.inject("lobby", token) // dropped

	stats := m.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Received != 2 {
		t.Errorf("Stats().Received = %d, want 2", stats.Received)
	}
}

func TestInbound_HandlerPanicRecovered(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport)
	codec := testCodec(t)

	received := make(chan string, 2)
	m.OnMessage(func(msg Message) {
		if msg.Text == "boom" {
			panic("handler exploded")
		}
		received <- msg.Text
	})

	connect(t, m)
	if err := m.Subscribe("lobby"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	boom, _ := codec.Encrypt([]byte("boom"))
	fine, _ := codec.Encrypt([]byte("fine"))
	transport.inject("lobby", boom)
	transport.inject("lobby", fine)

	select {
	case text := <-received:
		if text != "fine" {
			t.Errorf("received %q, want fine", text)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher stopped after a handler panic")
	}
}

func TestState_String(t *testing.T) {
	if StateReconnecting.String() != "reconnecting" {
		t.Errorf("String() = %q", StateReconnecting.String())
	}
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
