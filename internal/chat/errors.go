package chat

import "errors"

// Domain-specific errors for the chat loop.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidOptions is returned by New when a required option is missing.
	ErrInvalidOptions = errors.New("chat: invalid options")

	// ErrInputClosed is returned by prompts when input ends before an answer.
	ErrInputClosed = errors.New("chat: input closed")
)
