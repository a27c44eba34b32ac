// Package history keeps a local journal of chat envelopes in SQLite.
//
// Only ciphertext is stored. Replaying history therefore needs the same
// passphrase that was in use when the messages were sent; entries written
// under another passphrase simply fail to decrypt and are skipped by the
// reader.
package history
