package session

import (
	"context"

	"github.com/nerrad567/graychat/internal/infrastructure/config"
	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
)

// Transport is one broker connection. *mqtt.Client satisfies it.
//
// Connect makes a single attempt and may be called again after the
// connection is lost. The callback passed to SetOnConnectionLost fires
// only for unsolicited loss, never after Disconnect.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	SetOnConnectionLost(callback func(err error))
}

// healthChecker is implemented by transports that can check the broker
// connection. *mqtt.Client implements it.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// identified is implemented by transports that know their broker URL and
// client ID. *mqtt.Client implements it.
type identified interface {
	Broker() string
	ClientID() string
}

var (
	_ Transport     = (*mqtt.Client)(nil)
	_ healthChecker = (*mqtt.Client)(nil)
	_ identified    = (*mqtt.Client)(nil)
)

// Dialer builds a Transport for host:port without connecting it.
type Dialer func(host string, port int) (Transport, error)

// MQTTDialer returns a Dialer that builds paho-backed transports from cfg,
// substituting the host and port given to Connect.
func MQTTDialer(cfg config.MQTTConfig, logger mqtt.Logger) Dialer {
	return func(host string, port int) (Transport, error) {
		c := cfg
		c.Broker.Host = host
		c.Broker.Port = port

		client, err := mqtt.New(c)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}
