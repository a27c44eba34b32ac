// Package mqtt provides the broker transport for graychat.
//
// This package manages:
//   - A single connection attempt per Connect call
//   - Publishing opaque payloads at the configured QoS
//   - Subscribing with panic-safe handlers
//   - Topic validation before any network call
//   - Connection-lost notification
//
// # Architecture
//
// The package is a thin layer over paho.mqtt.golang. Paho's automatic
// reconnect is disabled; internal/session owns the retry loop, the
// connection state machine and the subscription set.
//
//	Chat loop ↔ session.Manager ↔ mqtt.Client ↔ MQTT broker
//
// # Security Considerations
//
//   - Payloads are encrypted before they reach this package
//   - TLS protects broker credentials in transit (cfg.Broker.TLS=true)
//   - Client IDs are random unless configured, so topic peers cannot be
//     linked across sessions by ID
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	err = client.Subscribe("lobby", func(topic string, payload []byte) error {
//	    return handle(payload)
//	})
//	err = client.Publish("lobby", token)
package mqtt
