package history

import "errors"

// Domain-specific errors for journal operations.
var (
	// ErrInvalidEnvelope is returned by Append for an envelope without a
	// topic, a payload, or a known direction.
	ErrInvalidEnvelope = errors.New("history: invalid envelope")

	// ErrDisabled is returned by Open when history is switched off in config.
	ErrDisabled = errors.New("history: disabled")
)
