// Package logging provides structured logging for graychat.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for machine consumption
//   - Coloured text output (tinter) when writing to a terminal
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "warn"      # debug, info, warn, error
//	  format: "auto"     # auto, text, json
//	  output: "stderr"   # stderr, stdout
//
// Logs go to stderr by default so they never interleave with the chat
// transcript on stdout.
//
// # Security
//
// Never log passphrases, derived keys, or message plaintext. Log message
// sizes and topics instead.
package logging
