package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/graychat/internal/cipher"
	"github.com/nerrad567/graychat/internal/history"
	"github.com/nerrad567/graychat/internal/infrastructure/influxdb"
	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
	"github.com/nerrad567/graychat/internal/session"
)

const (
	defaultPrompt  = "> "
	timeLayout     = "15:04:05"
	quitCommand    = "quit"
	journalTimeout = 2 * time.Second

	// pendingEchoes bounds how many sent tokens wait for their broker echo.
	pendingEchoes = 64
)

// Publisher sends a payload to a topic. *session.Manager satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Journal stores ciphertext envelopes. *history.Journal satisfies it.
type Journal interface {
	Append(ctx context.Context, e history.Envelope) (int64, error)
	Recent(ctx context.Context, topic string, limit int) ([]history.Envelope, error)
}

// Telemetry records message and connection events. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteMessageEvent(topic, direction, outcome string, size int)
	WriteStateChange(from, to string)
}

// Logger defines the logging interface for the chat loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Loop. Topic, Codec, Publisher, In and Out are required.
type Options struct {
	Topic     string
	Codec     cipher.Codec
	Publisher Publisher
	In        io.Reader
	Out       io.Writer

	// Prompt is shown before each line of input. Defaults to "> ".
	Prompt string

	// Journal and Telemetry are optional.
	Journal   Journal
	Telemetry Telemetry

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Loop is the foreground chat loop for one topic.
type Loop struct {
	topic     string
	codec     cipher.Codec
	pub       Publisher
	in        *bufio.Reader
	out       io.Writer
	prompt    string
	journal   Journal
	telemetry Telemetry
	now       func() time.Time
	logger    Logger

	// mu serialises every write to out.
	mu sync.Mutex

	// sent holds tokens published but not yet seen again from the broker,
	// so an echo of our own message is journaled once.
	sentMu    sync.Mutex
	sent      map[string]struct{}
	sentOrder []string
}

// New validates opts and returns a Loop.
//
// Returns:
//   - *Loop: Ready loop
//   - error: ErrInvalidTopic (session) for a bad topic, ErrInvalidOptions
//     for a missing collaborator
func New(opts Options) (*Loop, error) {
	if err := mqtt.ValidateTopic(opts.Topic); err != nil {
		return nil, err
	}
	switch {
	case opts.Codec == nil:
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidOptions)
	case opts.Publisher == nil:
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidOptions)
	case opts.In == nil:
		return nil, fmt.Errorf("%w: input is required", ErrInvalidOptions)
	case opts.Out == nil:
		return nil, fmt.Errorf("%w: output is required", ErrInvalidOptions)
	}

	in, ok := opts.In.(*bufio.Reader)
	if !ok {
		in = bufio.NewReader(opts.In)
	}
	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Loop{
		topic:     opts.Topic,
		codec:     opts.Codec,
		pub:       opts.Publisher,
		in:        in,
		out:       opts.Out,
		prompt:    prompt,
		journal:   opts.Journal,
		telemetry: opts.Telemetry,
		now:       now,
		logger:    noopLogger{},
		sent:      make(map[string]struct{}),
	}, nil
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Run reads and sends lines until the user types quit, input ends, or ctx
// is cancelled. All three return nil; only a failing reader is an error.
//
// Lines are read on a separate goroutine so cancellation is honoured while
// the read is blocked. That goroutine may outlive Run until the pending
// read returns.
func (l *Loop) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go l.readLines(lines, readErr, done)

	l.showPrompt()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("chat loop cancelled")
			return nil

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				l.logger.Debug("chat input closed")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)

		case line := <-lines:
			if isQuit(line) {
				l.logger.Debug("quit requested")
				return nil
			}
			if strings.TrimSpace(line) != "" {
				l.Send(line) //nolint:errcheck // Reported to the user by Send
			}
			l.showPrompt()
		}
	}
}

// readLines feeds lines from l.in to lines until a read fails.
// A final line without a newline is delivered before the error.
func (l *Loop) readLines(lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	for {
		raw, err := l.in.ReadString('\n')
		if raw != "" {
			select {
			case lines <- strings.TrimRight(raw, "\r\n"):
			case <-done:
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

func isQuit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), quitCommand)
}

// Send encrypts text and publishes it on the loop's topic.
//
// Failures are reported on the output and returned; they never end the loop.
func (l *Loop) Send(text string) error {
	if !utf8.ValidString(text) {
		err := fmt.Errorf("%w: message is not valid UTF-8", cipher.ErrEncryption)
		l.recordMessage(influxdb.DirectionSent, influxdb.OutcomeEncryptFailed, 0)
		l.Notice("could not encrypt message: %v", err)
		return err
	}

	token, err := l.codec.Encrypt([]byte(text))
	if err != nil {
		l.recordMessage(influxdb.DirectionSent, influxdb.OutcomeEncryptFailed, 0)
		l.logger.Error("encrypting message", "topic", l.topic, "error", err)
		l.Notice("could not encrypt message: %v", err)
		return err
	}

	// Remembered before publishing: the echo can arrive before Publish returns.
	l.rememberSent(token)
	if err := l.pub.Publish(l.topic, token); err != nil {
		l.forgetSent(token)
		l.recordMessage(influxdb.DirectionSent, influxdb.OutcomePublishFailed, len(token))
		l.logger.Warn("publishing message", "topic", l.topic, "error", err)
		l.Notice("message not sent: %v", err)
		return err
	}

	l.recordMessage(influxdb.DirectionSent, influxdb.OutcomeOK, len(token))
	l.appendJournal(history.DirectionSent, token)
	return nil
}

// HandleMessage journals and records an inbound message, then displays it.
// The broker's echo of a message this loop sent is shown but not journaled
// again. Register it with session.Manager.OnMessage.
func (l *Loop) HandleMessage(msg session.Message) {
	l.recordMessage(influxdb.DirectionReceived, influxdb.OutcomeOK, len(msg.Payload))
	if len(msg.Payload) > 0 && !l.forgetSent(msg.Payload) {
		l.appendJournal(history.DirectionReceived, msg.Payload)
	}
	l.Display(msg)
}

// Display writes an inbound message and redraws the prompt.
func (l *Loop) Display(msg session.Message) {
	at := msg.ReceivedAt
	if at.IsZero() {
		at = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\r[%s] %s\n%s", at.Format(timeLayout), msg.Text, l.prompt)
}

// Notice writes a one-line status message and redraws the prompt.
func (l *Loop) Notice(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\r-- %s\n%s", fmt.Sprintf(format, args...), l.prompt)
}

// HandleDrop reports an inbound payload the session discarded.
// Register it with session.Manager.OnDrop.
func (l *Loop) HandleDrop(topic string, size int, reason error) {
	if errors.Is(reason, cipher.ErrDecryption) {
		l.recordTopicMessage(topic, influxdb.DirectionReceived, influxdb.OutcomeDecryptFailed, size)
		l.Notice("could not decrypt a message on %s (different passphrase?)", topic)
		return
	}
	l.recordTopicMessage(topic, influxdb.DirectionReceived, influxdb.OutcomeDropped, size)
	l.logger.Warn("inbound message dropped", "topic", topic, "size", size, "reason", reason)
}

// HandleStateChange reports connection changes the user should know about.
// Register it with session.Manager.OnStateChange.
func (l *Loop) HandleStateChange(from, to session.State) {
	if l.telemetry != nil {
		l.telemetry.WriteStateChange(from.String(), to.String())
	}

	switch {
	case to == session.StateReconnecting:
		l.Notice("connection lost, reconnecting...")
	case from == session.StateReconnecting && to == session.StateConnected:
		l.Notice("reconnected")
	}
}

// Replay decrypts and shows up to limit journaled messages for the topic,
// oldest first. Envelopes that do not decrypt under the current key are
// counted in skipped and not shown.
func (l *Loop) Replay(ctx context.Context, limit int) (shown, skipped int, err error) {
	if l.journal == nil || limit <= 0 {
		return 0, 0, nil
	}

	envelopes, err := l.journal.Recent(ctx, l.topic, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("loading history: %w", err)
	}

	for _, e := range envelopes {
		plaintext, decErr := l.codec.Decrypt(e.Payload)
		if decErr != nil || !utf8.Valid(plaintext) {
			skipped++
			continue
		}
		l.Display(session.Message{
			Topic:      e.Topic,
			Text:       string(plaintext),
			Payload:    e.Payload,
			ReceivedAt: e.CreatedAt,
		})
		shown++
	}

	if skipped > 0 {
		l.Notice("%d earlier message(s) could not be decrypted with this passphrase", skipped)
	}
	l.logger.Debug("history replayed", "topic", l.topic, "shown", shown, "skipped", skipped)
	return shown, skipped, nil
}

func (l *Loop) showPrompt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, l.prompt)
}

func (l *Loop) appendJournal(direction history.Direction, payload []byte) {
	if l.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	_, err := l.journal.Append(ctx, history.Envelope{
		Topic:     l.topic,
		Direction: direction,
		Payload:   payload,
		CreatedAt: l.now(),
	})
	if err != nil {
		l.logger.Warn("journal append failed", "direction", direction, "error", err)
	}
}

// rememberSent records token as awaiting its echo. The oldest entry is
// evicted once pendingEchoes are outstanding.
func (l *Loop) rememberSent(token []byte) {
	l.sentMu.Lock()
	defer l.sentMu.Unlock()

	key := string(token)
	if _, ok := l.sent[key]; ok {
		return
	}
	if len(l.sentOrder) >= pendingEchoes {
		delete(l.sent, l.sentOrder[0])
		l.sentOrder = l.sentOrder[1:]
	}
	l.sent[key] = struct{}{}
	l.sentOrder = append(l.sentOrder, key)
}

// forgetSent removes token and reports whether it was awaiting its echo.
func (l *Loop) forgetSent(token []byte) bool {
	l.sentMu.Lock()
	defer l.sentMu.Unlock()

	key := string(token)
	if _, ok := l.sent[key]; !ok {
		return false
	}
	delete(l.sent, key)
	for i, k := range l.sentOrder {
		if k == key {
			l.sentOrder = append(l.sentOrder[:i], l.sentOrder[i+1:]...)
			break
		}
	}
	return true
}

func (l *Loop) recordMessage(direction, outcome string, size int) {
	l.recordTopicMessage(l.topic, direction, outcome, size)
}

func (l *Loop) recordTopicMessage(topic, direction, outcome string, size int) {
	if l.telemetry == nil {
		return
	}
	l.telemetry.WriteMessageEvent(topic, direction, outcome, size)
}
