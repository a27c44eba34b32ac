package cipher

import "errors"

// Domain-specific errors for key derivation and payload encryption.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidPassphrase is returned when a passphrase is blank or shorter
	// than MinPassphraseLength characters after trimming.
	ErrInvalidPassphrase = errors.New("cipher: invalid passphrase")

	// ErrEncryption is returned when a payload cannot be encrypted.
	ErrEncryption = errors.New("cipher: encryption failed")

	// ErrDecryption is returned when a token is malformed, was produced under
	// a different key, has been tampered with, or has expired.
	ErrDecryption = errors.New("cipher: decryption failed")

	// ErrUnknownCodec is returned by New for an unsupported codec name.
	ErrUnknownCodec = errors.New("cipher: unknown codec")
)
