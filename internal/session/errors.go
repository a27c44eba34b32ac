package session

import (
	"errors"
	"fmt"

	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
)

// Domain-specific errors for session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnection is returned when the broker cannot be reached or the
	// address is unusable.
	ErrConnection = errors.New("session: connection failed")

	// ErrAlreadyConnected is returned by Connect when the session is not
	// Disconnected.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrReconnecting is returned while a reconnect is in progress.
	// It also matches ErrNotConnected.
	ErrReconnecting = fmt.Errorf("%w: reconnecting", ErrNotConnected)

	// ErrInvalidTopic is the transport's topic error, re-exported so callers
	// need not import the mqtt package.
	ErrInvalidTopic = mqtt.ErrInvalidTopic

	// ErrPublish is returned when the broker rejects or times out a publish.
	ErrPublish = errors.New("session: publish failed")

	// ErrSubscribe is returned when the broker rejects or times out a subscribe.
	ErrSubscribe = errors.New("session: subscribe failed")

	// ErrQueueFull is reported to drop observers when an inbound message is
	// discarded because the display queue is full.
	ErrQueueFull = errors.New("session: inbound queue full")
)
