package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Port range accepted for the broker.
const (
	minPort = 1
	maxPort = 65535
)

// ErrInvalidPort is returned by ParsePort for non-numeric or out-of-range input.
var ErrInvalidPort = errors.New("config: port must be a number between 1 and 65535")

// Config is the root configuration structure for graychat.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Chat     ChatConfig     `yaml:"chat"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Timeout   int                 `yaml:"connect_timeout"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// An empty ClientID is replaced by a random one at connect time.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection settings.
// Interval is the fixed delay between reconnect attempts, in seconds.
type MQTTReconnectConfig struct {
	Interval int `yaml:"interval"`
}

// ChatConfig contains chat session settings.
// Empty values are asked for interactively at startup.
type ChatConfig struct {
	Topic      string `yaml:"topic"`
	Passphrase string `yaml:"passphrase"`
	QueueSize  int    `yaml:"queue_size"`
}

// CryptoConfig selects the payload codec.
type CryptoConfig struct {
	// Codec is "fernet" (default, interoperable) or "secretbox".
	Codec string `yaml:"codec"`

	// MaxAge rejects fernet tokens older than this many seconds. 0 disables.
	MaxAge int `yaml:"max_age"`
}

// HistoryConfig contains the local message journal settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	Replay      int    `yaml:"replay"`
	Keep        int    `yaml:"keep"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYCHAT_SECTION_KEY
// For example: GRAYCHAT_MQTT_HOST, GRAYCHAT_TOPIC
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDefault returns the defaults with environment overrides applied.
// Used when no configuration file exists.
func LoadDefault() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// Broker host, port, topic and passphrase are left for the interactive
// prompts unless set in the file or environment.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			QoS:       1,
			KeepAlive: 60,
			Timeout:   60,
			Reconnect: MQTTReconnectConfig{
				Interval: 5,
			},
		},
		Chat: ChatConfig{
			QueueSize: 64,
		},
		Crypto: CryptoConfig{
			Codec: "fernet",
		},
		History: HistoryConfig{
			Enabled:     false,
			Path:        "./data/graychat.db",
			WALMode:     true,
			BusyTimeout: 5,
			Replay:      20,
			Keep:        1000,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "auto",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYCHAT_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("GRAYCHAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYCHAT_MQTT_PORT"); v != "" {
		port, err := ParsePort(v)
		if err != nil {
			return fmt.Errorf("GRAYCHAT_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("GRAYCHAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYCHAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Chat
	if v := os.Getenv("GRAYCHAT_TOPIC"); v != "" {
		cfg.Chat.Topic = v
	}
	// Prefer the environment over the file for the shared secret.
	if v := os.Getenv("GRAYCHAT_PASSPHRASE"); v != "" {
		cfg.Chat.Passphrase = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYCHAT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Broker host, port, and topic may be empty (they are prompted for), but
// values that are present must be usable.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Port != 0 && (c.MQTT.Broker.Port < minPort || c.MQTT.Broker.Port > maxPort) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keep_alive must be positive")
	}
	if c.MQTT.Timeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.Reconnect.Interval <= 0 {
		errs = append(errs, "mqtt.reconnect.interval must be positive")
	}

	// Chat validation
	if c.Chat.QueueSize <= 0 {
		errs = append(errs, "chat.queue_size must be positive")
	}

	// Crypto validation
	switch strings.ToLower(c.Crypto.Codec) {
	case "fernet", "secretbox":
	default:
		errs = append(errs, "crypto.codec must be fernet or secretbox")
	}
	if c.Crypto.MaxAge < 0 {
		errs = append(errs, "crypto.max_age must not be negative")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.History.Replay < 0 || c.History.Keep < 0 {
		errs = append(errs, "history.replay and history.keep must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ParsePort parses a broker port given as text.
//
// It rejects anything that is not a base-10 integer in 1..65535.
func ParsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, s)
	}
	if port < minPort || port > maxPort {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}
	return port, nil
}

// GetConnectTimeout returns the broker connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.Timeout) * time.Second
}

// GetReconnectInterval returns the fixed reconnect backoff as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.Reconnect.Interval) * time.Second
}

// GetMaxAge returns the fernet token TTL as a Duration (0 = unlimited).
func (c *Config) GetMaxAge() time.Duration {
	return time.Duration(c.Crypto.MaxAge) * time.Second
}
