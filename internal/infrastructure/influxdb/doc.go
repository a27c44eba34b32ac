// Package influxdb records optional chat telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	chat_messages  tags: topic, direction, outcome   fields: count, bytes
//	chat_session   tags: from, to                    fields: transitions
//
// Writes are non-blocking and batched by the client library. Plaintext is
// never written; sizes are ciphertext sizes.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteStateChange("connected", "reconnecting")
package influxdb
