// Package cipher derives the shared chat key from a passphrase and provides
// authenticated encryption of message payloads.
//
// This package manages:
//   - Passphrase validation (non-blank, at least 8 characters after trimming)
//   - Deterministic key derivation (SHA-256 of the passphrase, no salt)
//   - Payload codecs: Fernet (default) and NaCl secretbox
//
// # Key Derivation
//
// Every party that knows the passphrase derives the same 32-byte key without
// a handshake. There is no salt and no key confirmation: two clients with
// different passphrases simply fail to decrypt each other's messages, which
// surfaces as ErrDecryption on the receiving side.
//
// # Wire Format
//
// The fernet codec produces standard Fernet tokens (version, timestamp, IV,
// AES-128-CBC ciphertext, HMAC-SHA256), URL-safe base64 encoded. Tokens are
// interchangeable with any other Fernet implementation keyed with
// base64url(sha256(passphrase)).
//
// The secretbox codec produces base64url(nonce || secretbox(plaintext)) with a
// random 24-byte nonce.
//
// # Usage
//
//	key, err := cipher.DeriveKey("correct-horse-battery")
//	if err != nil {
//	    return err // cipher.ErrInvalidPassphrase
//	}
//	codec, err := cipher.New(cipher.CodecFernet, key, cipher.Options{})
//	token, err := codec.Encrypt([]byte("hello"))
//	plain, err := codec.Decrypt(token)
//
// Codecs hold no per-call state and are safe for concurrent use.
package cipher
