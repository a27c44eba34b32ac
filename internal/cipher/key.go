package cipher

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// KeySize is the length of a derived key in bytes.
const KeySize = sha256.Size

// DerivedKey is the symmetric key shared by everyone who knows the passphrase.
type DerivedKey [KeySize]byte

// DeriveKey validates passphrase and derives the chat key from it.
//
// The key is the SHA-256 digest of the passphrase bytes. Identical
// passphrases always yield identical keys.
func DeriveKey(passphrase string) (DerivedKey, error) {
	p, err := NewPassphrase(passphrase)
	if err != nil {
		return DerivedKey{}, err
	}
	return p.Key(), nil
}

// Key derives the chat key from a validated passphrase.
func (p Passphrase) Key() DerivedKey {
	return DerivedKey(sha256.Sum256([]byte(p.value)))
}

// Encoded returns the key as padded URL-safe base64, the key format Fernet
// implementations expect.
func (k DerivedKey) Encoded() string {
	return base64.URLEncoding.EncodeToString(k[:])
}

// Fingerprint returns a short, non-secret identifier for the key that two
// parties can compare out of band to confirm they typed the same passphrase.
func (k DerivedKey) Fingerprint() string {
	sum := sha256.Sum256(k[:])
	return fmt.Sprintf("%x", sum[:4])
}

// String redacts the key material.
func (k DerivedKey) String() string {
	return "[redacted]"
}
