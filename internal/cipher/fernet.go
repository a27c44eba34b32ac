package cipher

import (
	"crypto/aes"
	"fmt"

	"github.com/fernet/fernet-go"
)

// Fernet token layout, see https://github.com/fernet/spec.
const (
	fernetVersion    = 0x80
	fernetHeaderSize = 1 + 8 + aes.BlockSize // version, timestamp, IV
	fernetHMACSize   = 32
	fernetMinSize    = fernetHeaderSize + aes.BlockSize + fernetHMACSize
)

// FernetCodec encrypts payloads as Fernet tokens.
type FernetCodec struct {
	keys []*fernet.Key
	opts Options
}

// NewFernet returns a Fernet codec keyed with the URL-safe base64 form of key.
func NewFernet(key DerivedKey, opts Options) (*FernetCodec, error) {
	k, err := fernet.DecodeKey(key.Encoded())
	if err != nil {
		return nil, fmt.Errorf("decoding fernet key: %w", err)
	}
	return &FernetCodec{keys: []*fernet.Key{k}, opts: opts}, nil
}

// Name implements Codec.
func (c *FernetCodec) Name() string {
	return CodecFernet
}

// Encrypt implements Codec.
func (c *FernetCodec) Encrypt(plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, c.keys[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	return tok, nil
}

// Decrypt implements Codec.
func (c *FernetCodec) Decrypt(token []byte) ([]byte, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(raw) < fernetMinSize || raw[0] != fernetVersion ||
		(len(raw)-fernetHeaderSize-fernetHMACSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: malformed fernet token", ErrDecryption)
	}

	// fernet-go only checks the timestamp for a positive TTL.
	msg := fernet.VerifyAndDecrypt(token, c.opts.MaxAge, c.keys)
	if msg == nil {
		return nil, fmt.Errorf("%w: token invalid, expired or encrypted under another passphrase", ErrDecryption)
	}
	return msg, nil
}
