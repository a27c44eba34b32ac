package cipher

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const secretboxNonceSize = 24

// SecretboxCodec encrypts payloads with NaCl secretbox (XSalsa20-Poly1305).
// Tokens are base64url(nonce || box).
type SecretboxCodec struct {
	key [KeySize]byte
}

// NewSecretbox returns a secretbox codec keyed with key.
func NewSecretbox(key DerivedKey) *SecretboxCodec {
	return &SecretboxCodec{key: key}
}

// Name implements Codec.
func (c *SecretboxCodec) Name() string {
	return CodecSecretbox
}

// Encrypt implements Codec.
func (c *SecretboxCodec) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %w", ErrEncryption, err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return encodeToken(sealed), nil
}

// Decrypt implements Codec.
func (c *SecretboxCodec) Decrypt(token []byte) ([]byte, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(raw) < secretboxNonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: token too short", ErrDecryption)
	}

	var nonce [secretboxNonceSize]byte
	copy(nonce[:], raw[:secretboxNonceSize])
	plain, ok := secretbox.Open(nil, raw[secretboxNonceSize:], &nonce, &c.key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed (wrong passphrase?)", ErrDecryption)
	}
	return plain, nil
}
