package cipher

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Supported codec names.
const (
	CodecFernet    = "fernet"
	CodecSecretbox = "secretbox"
)

// tokenEncoding is used by every codec for the text form of a token.
// Strict decoding rejects tokens whose trailing padding bits were altered.
var tokenEncoding = base64.URLEncoding.Strict()

// Codec encrypts and decrypts opaque message payloads under a derived key.
//
// Implementations must produce a different token for every call to Encrypt,
// and Decrypt must fail with ErrDecryption rather than return altered
// plaintext. Implementations are safe for concurrent use.
type Codec interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(token []byte) ([]byte, error)
	Name() string
}

// Options tunes codec behaviour.
type Options struct {
	// MaxAge rejects fernet tokens older than this. Zero disables the check.
	// Ignored by codecs without an embedded timestamp.
	MaxAge time.Duration
}

// New returns the codec registered under name, keyed with key.
func New(name string, key DerivedKey, opts Options) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecFernet:
		return NewFernet(key, opts)
	case CodecSecretbox:
		return NewSecretbox(key), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// decodeToken strictly decodes the base64 text form of a token.
func decodeToken(token []byte) ([]byte, error) {
	raw := make([]byte, tokenEncoding.DecodedLen(len(token)))
	n, err := tokenEncoding.Decode(raw, token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %w", ErrDecryption, err)
	}
	return raw[:n], nil
}

// encodeToken returns the base64 text form of a raw token.
func encodeToken(raw []byte) []byte {
	out := make([]byte, tokenEncoding.EncodedLen(len(raw)))
	tokenEncoding.Encode(out, raw)
	return out
}
