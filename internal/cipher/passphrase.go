package cipher

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinPassphraseLength is the minimum number of characters a passphrase must
// have once surrounding whitespace is removed.
const MinPassphraseLength = 8

// Passphrase is a validated shared secret. The zero value is not valid;
// construct one with NewPassphrase.
type Passphrase struct {
	value string
}

// NewPassphrase validates s and returns it as a Passphrase.
//
// The passphrase must not be blank and must contain at least
// MinPassphraseLength characters after trimming. The untrimmed value is kept
// and used for key derivation.
func NewPassphrase(s string) (Passphrase, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Passphrase{}, fmt.Errorf("%w: must not be empty", ErrInvalidPassphrase)
	}
	if n := utf8.RuneCountInString(trimmed); n < MinPassphraseLength {
		return Passphrase{}, fmt.Errorf("%w: must be at least %d characters, got %d",
			ErrInvalidPassphrase, MinPassphraseLength, n)
	}
	return Passphrase{value: s}, nil
}

// String redacts the passphrase so it never ends up in logs.
func (p Passphrase) String() string {
	return "[redacted]"
}

// IsZero reports whether p was not produced by NewPassphrase.
func (p Passphrase) IsZero() bool {
	return p.value == ""
}
