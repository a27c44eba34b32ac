// Package session manages an encrypted chat session on an MQTT broker.
//
// A Manager owns the connection state machine:
//
//	Disconnected → Connecting → Connected ⇄ Reconnecting
//	      ↑______________________________________|  (Disconnect)
//
// Publish fails fast with ErrReconnecting while a reconnect is running
// rather than blocking the caller. Inbound payloads are decrypted on the
// transport's goroutine, queued, and handed to the OnMessage handler by a
// single dispatcher goroutine; payloads that fail to decrypt are logged
// and dropped.
//
// Reconnection uses a fixed interval and is cancelled by Disconnect, which
// waits for the loop to exit. Subscriptions made through the Manager are
// restored on every successful reconnect.
package session
