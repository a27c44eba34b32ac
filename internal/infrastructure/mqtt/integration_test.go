//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/graychat/internal/infrastructure/config"
)

// Integration tests against a live broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "127.0.0.1",
			Port: 1883,
		},
		QoS:       1,
		KeepAlive: 60,
		Timeout:   10,
	}
}

func connectIntegration(t *testing.T) *Client {
	t.Helper()
	client, err := New(integrationConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(client.Disconnect)
	return client
}

func TestIntegration_ConnectDisconnect(t *testing.T) {
	client := connectIntegration(t)

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Disconnect()
	if client.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}

	// Connect works again on the same client after Disconnect.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := connectIntegration(t)
	sub := connectIntegration(t)

	topic := "graychat/int/" + sub.ClientID()
	expected := "opaque-token-12345"

	received := make(chan string, 1)
	err := sub.Subscribe(topic, func(_ string, p []byte) error {
		select {
		case received <- string(p):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for message")
	}

	if err := sub.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestIntegration_NoCrossTopicDelivery(t *testing.T) {
	pub := connectIntegration(t)
	sub := connectIntegration(t)

	received := make(chan string, 1)
	if err := sub.Subscribe("graychat/int/other-"+sub.ClientID(), func(_ string, p []byte) error {
		received <- string(p)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish("graychat/int/lobby-"+sub.ClientID(), []byte("hello")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		t.Errorf("received %q on an unrelated topic", msg)
	case <-time.After(500 * time.Millisecond):
	}
}
