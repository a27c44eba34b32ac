package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementMessages = "chat_messages"
	measurementSession  = "chat_session"
)

// Message directions and outcomes recorded by WriteMessageEvent.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"

	OutcomeOK            = "ok"
	OutcomeEncryptFailed = "encrypt_failed"
	OutcomePublishFailed = "publish_failed"
	OutcomeDecryptFailed = "decrypt_failed"
	OutcomeDropped       = "dropped"
)

// WriteMessageEvent records one chat message event.
//
// size is the ciphertext length in bytes. The write is non-blocking;
// points are batched and sent asynchronously. A nil or closed client
// ignores the call so callers need not check whether telemetry is enabled.
//
// Example:
//
//	client.WriteMessageEvent("lobby", influxdb.DirectionSent, influxdb.OutcomeOK, len(token))
func (c *Client) WriteMessageEvent(topic, direction, outcome string, size int) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(messagePoint(topic, direction, outcome, size, time.Now()))
}

// WriteStateChange records a connection state transition.
func (c *Client) WriteStateChange(from, to string) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(statePoint(from, to, time.Now()))
}

func messagePoint(topic, direction, outcome string, size int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementMessages,
		map[string]string{
			"topic":     topic,
			"direction": direction,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"count": 1,
			"bytes": size,
		},
		ts,
	)
}

func statePoint(from, to string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementSession,
		map[string]string{
			"from": from,
			"to":   to,
		},
		map[string]interface{}{
			"transitions": 1,
		},
		ts,
	)
}
