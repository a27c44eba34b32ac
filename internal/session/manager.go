package session

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/graychat/internal/cipher"
	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
)

// Defaults applied by New for zero Config fields.
const (
	defaultConnectTimeout    = 60 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultQueueSize         = 64
)

// Config holds session tuning.
type Config struct {
	// ConnectTimeout bounds each connection attempt, initial or reconnect.
	ConnectTimeout time.Duration

	// ReconnectInterval is the fixed wait between reconnect attempts.
	ReconnectInterval time.Duration

	// QueueSize is the capacity of the inbound message queue.
	QueueSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    defaultConnectTimeout,
		ReconnectInterval: defaultReconnectInterval,
		QueueSize:         defaultQueueSize,
	}
}

// Message is a decrypted inbound chat message.
type Message struct {
	Topic      string
	Text       string
	Payload    []byte // ciphertext as received
	ReceivedAt time.Time
}

// Stats are cumulative session counters.
type Stats struct {
	State             State
	ReconnectAttempts uint64
	Reconnects        uint64
	Published         uint64
	Received          uint64
	Dropped           uint64
	DecryptFailures   uint64
	LastError         error
}

// Logger defines the logging interface for the session manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns a broker session and its connection state machine.
//
// It decrypts inbound payloads with the codec and hands plaintext to the
// OnMessage handler through a bounded queue drained by a single dispatcher
// goroutine. An unsolicited connection loss starts a background loop that
// retries at a fixed interval and restores subscriptions on success.
//
// Handlers registered with OnMessage, OnStateChange and OnDrop must not
// call Disconnect.
type Manager struct {
	cfg    Config
	codec  cipher.Codec
	dial   Dialer
	logger Logger

	mu            sync.Mutex
	state         State
	transport     Transport
	subscriptions map[string]struct{}
	cancelConnect context.CancelFunc
	stats         Stats

	// Reconnect loop coordination
	cancelReconnect context.CancelFunc
	reconnectDone   chan struct{}

	// Dispatcher coordination
	queue        chan Message
	dispatchStop chan struct{}
	dispatchDone chan struct{}

	handlerMu     sync.RWMutex
	onMessage     func(Message)
	onStateChange func(from, to State)
	onDrop        func(topic string, size int, reason error)
}

// New creates a session manager. Zero Config fields take defaults.
func New(cfg Config, codec cipher.Codec, dial Dialer) *Manager {
	defaults := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaults.ReconnectInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}

	return &Manager{
		cfg:           cfg,
		codec:         codec,
		dial:          dial,
		logger:        noopLogger{},
		state:         StateDisconnected,
		subscriptions: make(map[string]struct{}),
		queue:         make(chan Message, cfg.QueueSize),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// OnMessage registers the handler for decrypted inbound messages.
// It runs on the dispatcher goroutine; panics are recovered and logged.
func (m *Manager) OnMessage(handler func(Message)) {
	m.handlerMu.Lock()
	m.onMessage = handler
	m.handlerMu.Unlock()
}

// OnStateChange registers an observer for state transitions.
func (m *Manager) OnStateChange(handler func(from, to State)) {
	m.handlerMu.Lock()
	m.onStateChange = handler
	m.handlerMu.Unlock()
}

// OnDrop registers an observer for discarded inbound messages. reason
// matches cipher.ErrDecryption or ErrQueueFull.
func (m *Manager) OnDrop(handler func(topic string, size int, reason error)) {
	m.handlerMu.Lock()
	m.onDrop = handler
	m.handlerMu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.State = m.state
	return s
}

// Connect opens a session to host:port.
//
// The address is validated before any network activity. The attempt is
// bounded by the configured connect timeout and by ctx. On failure the
// session returns to Disconnected.
//
// Returns:
//   - error: ErrAlreadyConnected unless Disconnected, ErrConnection otherwise
func (m *Manager) Connect(ctx context.Context, host string, port int) error {
	if host == "" {
		return fmt.Errorf("%w: broker host is empty", ErrConnection)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrConnection, port)
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting
	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	m.cancelConnect = cancel
	m.mu.Unlock()
	defer cancel()

	m.notifyState(StateDisconnected, StateConnecting)
	m.logger.Info("connecting to broker", "host", host, "port", port)

	t, err := m.dial(host, port)
	if err == nil {
		t.SetOnConnectionLost(func(err error) {
			m.handleConnectionLost(t, err)
		})
		err = t.Connect(attemptCtx)
	}

	m.mu.Lock()
	m.cancelConnect = nil
	if err != nil {
		m.stats.LastError = err
		aborted := m.state != StateConnecting
		m.state = StateDisconnected
		m.mu.Unlock()

		if !aborted {
			m.notifyState(StateConnecting, StateDisconnected)
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if m.state != StateConnecting {
		// Disconnect ran while the attempt was completing.
		m.mu.Unlock()
		t.Disconnect()
		return fmt.Errorf("%w: disconnected during connect", ErrConnection)
	}
	m.transport = t
	m.state = StateConnected
	m.startDispatcherLocked()
	m.mu.Unlock()

	m.notifyState(StateConnecting, StateConnected)
	if id, ok := t.(identified); ok {
		m.logger.Info("connected to broker", "broker", id.Broker(), "client_id", id.ClientID())
	} else {
		m.logger.Info("connected to broker", "host", host, "port", port)
	}
	return nil
}

// HealthCheck verifies the session is Connected and, when the transport
// supports it, that the broker connection is alive.
//
// Returns:
//   - error: ErrReconnecting or ErrNotConnected when not Connected, or the
//     transport's health check failure
func (m *Manager) HealthCheck(ctx context.Context) error {
	t, err := m.liveTransport()
	if err != nil {
		return err
	}
	if hc, ok := t.(healthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Subscribe starts receiving messages on topic.
//
// The subscription is remembered and restored after every reconnect.
func (m *Manager) Subscribe(topic string) error {
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}

	t, err := m.liveTransport()
	if err != nil {
		return err
	}

	// Tracked before the network call so a reconnect racing with it
	// restores the topic too.
	m.mu.Lock()
	_, existed := m.subscriptions[topic]
	m.subscriptions[topic] = struct{}{}
	m.mu.Unlock()

	if err := t.Subscribe(topic, m.handleInbound); err != nil {
		if !existed {
			m.mu.Lock()
			delete(m.subscriptions, topic)
			m.mu.Unlock()
		}
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	m.logger.Debug("subscribed", "topic", topic)
	return nil
}

// Unsubscribe stops receiving messages on topic.
//
// The topic is forgotten even if the broker cannot be told, so it is not
// restored on reconnect. Without a live connection this is a no-op.
func (m *Manager) Unsubscribe(topic string) error {
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.subscriptions, topic)
	var t Transport
	if m.state == StateConnected {
		t = m.transport
	}
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing %q: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic.
//
// The payload is never inspected. While Reconnecting it fails fast with
// ErrReconnecting instead of waiting for the connection to return.
func (m *Manager) Publish(topic string, payload []byte) error {
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}

	t, err := m.liveTransport()
	if err != nil {
		return err
	}

	if err := t.Publish(topic, payload); err != nil {
		m.mu.Lock()
		m.stats.LastError = err
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	m.mu.Lock()
	m.stats.Published++
	m.mu.Unlock()
	return nil
}

// Disconnect closes the session from any state.
//
// A running reconnect loop is cancelled and waited for, the dispatcher is
// stopped and tracked subscriptions are forgotten. Calling Disconnect on a
// disconnected session is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	from := m.state
	if from == StateDisconnected && m.transport == nil {
		m.mu.Unlock()
		return nil
	}
	m.state = StateDisconnected

	t := m.transport
	m.transport = nil
	cancelConnect := m.cancelConnect
	m.cancelConnect = nil
	cancelReconnect, reconnectDone := m.cancelReconnect, m.reconnectDone
	m.cancelReconnect, m.reconnectDone = nil, nil
	stop, dispatchDone := m.dispatchStop, m.dispatchDone
	m.dispatchStop, m.dispatchDone = nil, nil
	m.subscriptions = make(map[string]struct{})
	m.mu.Unlock()

	if cancelConnect != nil {
		cancelConnect()
	}
	if cancelReconnect != nil {
		cancelReconnect()
		<-reconnectDone
	}
	if t != nil {
		t.Disconnect()
	}
	if stop != nil {
		close(stop)
		<-dispatchDone
		m.drainQueue()
	}

	m.notifyState(from, StateDisconnected)
	m.logger.Info("disconnected from broker")
	return nil
}

// liveTransport returns the transport if the session is Connected.
func (m *Manager) liveTransport() (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnected:
		return m.transport, nil
	case StateReconnecting:
		return nil, ErrReconnecting
	default:
		return nil, ErrNotConnected
	}
}

// handleConnectionLost moves Connected to Reconnecting and starts the
// retry loop. Loss reported by a stale transport is ignored.
func (m *Manager) handleConnectionLost(t Transport, cause error) {
	m.mu.Lock()
	if m.state != StateConnected || m.transport != t {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.stats.LastError = cause

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancelReconnect = cancel
	m.reconnectDone = done
	m.mu.Unlock()

	m.logger.Warn("connection to broker lost", "error", cause)
	m.notifyState(StateConnected, StateReconnecting)

	go m.reconnect(ctx, t, done)
}

// reconnect retries t.Connect at a fixed interval until it succeeds or
// ctx is cancelled.
func (m *Manager) reconnect(ctx context.Context, t Transport, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		m.stats.ReconnectAttempts++
		m.mu.Unlock()

		err := m.reconnectOnce(ctx, t)
		if err == nil {
			m.mu.Lock()
			if m.state != StateReconnecting || m.transport != t {
				// Disconnect won the race; it will close t.
				m.mu.Unlock()
				return
			}
			m.state = StateConnected
			m.stats.Reconnects++
			m.cancelReconnect, m.reconnectDone = nil, nil
			m.mu.Unlock()

			m.logger.Info("reconnected to broker", "attempt", attempt)
			m.notifyState(StateReconnecting, StateConnected)

			// Lost again before the state flip became visible.
			if !t.IsConnected() {
				m.handleConnectionLost(t, mqtt.ErrNotConnected)
			}
			return
		}

		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		m.stats.LastError = err
		m.mu.Unlock()

		m.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"retry_in", m.cfg.ReconnectInterval,
			"error", err,
		)

		timer := time.NewTimer(m.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// reconnectOnce makes one connection attempt and restores subscriptions.
func (m *Manager) reconnectOnce(ctx context.Context, t Transport) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := t.Connect(attemptCtx); err != nil {
		return err
	}

	m.mu.Lock()
	topics := make([]string, 0, len(m.subscriptions))
	for topic := range m.subscriptions {
		topics = append(topics, topic)
	}
	m.mu.Unlock()

	for _, topic := range topics {
		if err := t.Subscribe(topic, m.handleInbound); err != nil {
			t.Disconnect()
			return fmt.Errorf("restoring subscription %q: %w", topic, err)
		}
		m.logger.Debug("subscription restored", "topic", topic)
	}
	return nil
}

// handleInbound decrypts a payload and queues it for the dispatcher.
// It runs on the transport's delivery goroutine and never blocks.
func (m *Manager) handleInbound(topic string, payload []byte) error {
	plain, err := m.codec.Decrypt(payload)
	if err == nil && !utf8.Valid(plain) {
		err = fmt.Errorf("%w: plaintext is not valid UTF-8", cipher.ErrDecryption)
	}
	if err != nil {
		m.mu.Lock()
		m.stats.DecryptFailures++
		m.mu.Unlock()

		m.logger.Warn("dropping message that failed to decrypt",
			"topic", topic,
			"size", len(payload),
			"error", err,
		)
		m.notifyDrop(topic, len(payload), err)
		return nil
	}

	msg := Message{
		Topic:      topic,
		Text:       string(plain),
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now(),
	}

	select {
	case m.queue <- msg:
		m.mu.Lock()
		m.stats.Received++
		m.mu.Unlock()
	default:
		m.mu.Lock()
		m.stats.Dropped++
		m.mu.Unlock()

		m.logger.Warn("inbound queue full, dropping message",
			"topic", topic,
			"capacity", cap(m.queue),
		)
		m.notifyDrop(topic, len(payload), ErrQueueFull)
	}
	return nil
}

// startDispatcherLocked starts the dispatcher goroutine. Caller holds m.mu.
func (m *Manager) startDispatcherLocked() {
	if m.dispatchStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.dispatchStop = stop
	m.dispatchDone = done
	go m.dispatch(stop, done)
}

// dispatch delivers queued messages to the OnMessage handler in order.
func (m *Manager) dispatch(stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case msg := <-m.queue:
			m.deliver(msg)
		}
	}
}

// deliver invokes the message handler with panic recovery.
func (m *Manager) deliver(msg Message) {
	m.handlerMu.RLock()
	handler := m.onMessage
	m.handlerMu.RUnlock()

	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("message handler panic recovered",
				"topic", msg.Topic,
				"panic", r,
			)
		}
	}()

	handler(msg)
}

// drainQueue discards messages left over after the dispatcher stopped.
func (m *Manager) drainQueue() {
	for {
		select {
		case <-m.queue:
		default:
			return
		}
	}
}

func (m *Manager) notifyState(from, to State) {
	if from == to {
		return
	}

	m.handlerMu.RLock()
	handler := m.onStateChange
	m.handlerMu.RUnlock()

	if handler != nil {
		handler(from, to)
	}
}

func (m *Manager) notifyDrop(topic string, size int, reason error) {
	m.handlerMu.RLock()
	handler := m.onDrop
	m.handlerMu.RUnlock()

	if handler != nil {
		handler(topic, size, reason)
	}
}
