// graychat - end-to-end encrypted chat over MQTT
//
// Everyone who joins a topic with the same passphrase can read each other's
// messages. The broker only ever sees opaque tokens.
//
// Configuration is read from configs/config.yaml (or GRAYCHAT_CONFIG) and
// GRAYCHAT_* environment variables. Anything left unset is asked for
// interactively.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/graychat/internal/chat"
	"github.com/nerrad567/graychat/internal/cipher"
	"github.com/nerrad567/graychat/internal/history"
	"github.com/nerrad567/graychat/internal/infrastructure/config"
	"github.com/nerrad567/graychat/internal/infrastructure/influxdb"
	"github.com/nerrad567/graychat/internal/infrastructure/logging"
	"github.com/nerrad567/graychat/internal/infrastructure/mqtt"
	"github.com/nerrad567/graychat/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds journal pruning on the way out.
const shutdownTimeout = 5 * time.Second

func main() {
	// Cancel on Ctrl+C or SIGTERM so the session shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - stdin: Source of prompt answers and chat lines
//   - stdout: Destination of prompts and the chat transcript
//
// Returns:
//   - error: nil on quit, end of input or signal; otherwise the failure
func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	// Bootstrap logger until configuration is loaded
	log := logging.Default()

	cfg, configPath, err := loadConfig()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Debug("starting graychat",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Ask for whatever configuration did not provide
	prompter := chat.NewPrompter(stdin, stdout)

	host, err := prompter.Line("MQTT broker address", cfg.MQTT.Broker.Host)
	if err != nil {
		return err
	}
	port, err := prompter.Port("MQTT port (1-65535)", cfg.MQTT.Broker.Port)
	if err != nil {
		return err
	}
	topic, err := prompter.Line("MQTT topic", cfg.Chat.Topic)
	if err != nil {
		return err
	}
	if err := mqtt.ValidateTopic(topic); err != nil {
		fmt.Fprintf(stdout, "-- %v\n", err)
		return nil
	}
	secret, err := prompter.Secret("Passphrase", cfg.Chat.Passphrase)
	if err != nil {
		return err
	}

	key, err := cipher.DeriveKey(secret)
	if err != nil {
		return err
	}
	codec, err := cipher.New(cfg.Crypto.Codec, key, cipher.Options{MaxAge: cfg.GetMaxAge()})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Key fingerprint %s (%s). Peers with the same passphrase see the same value.\n",
		key.Fingerprint(), codec.Name())

	opts := chat.Options{
		Topic: topic,
		Codec: codec,
		In:    prompter.Reader(),
		Out:   stdout,
	}

	// Local journal (optional)
	journal, err := openJournal(ctx, cfg.History, log)
	if err != nil {
		return err
	}
	if journal != nil {
		defer closeJournal(journal, cfg.History.Keep, log)
		opts.Journal = journal
	}

	// Telemetry (optional)
	telemetry := connectTelemetry(ctx, cfg.InfluxDB, log)
	if telemetry != nil {
		defer func() {
			log.Debug("closing InfluxDB connection")
			if closeErr := telemetry.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		opts.Telemetry = telemetry
	}

	// Session
	mgr := session.New(session.Config{
		ConnectTimeout:    cfg.GetConnectTimeout(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		QueueSize:         cfg.Chat.QueueSize,
	}, codec, session.MQTTDialer(cfg.MQTT, log.With("component", "mqtt")))
	mgr.SetLogger(log.With("component", "session"))

	opts.Publisher = mgr
	loop, err := chat.New(opts)
	if err != nil {
		return err
	}
	loop.SetLogger(log.With("component", "chat"))

	mgr.OnMessage(loop.HandleMessage)
	mgr.OnDrop(loop.HandleDrop)
	mgr.OnStateChange(func(from, to session.State) {
		log.Info("session state changed", "from", from, "to", to)
		loop.HandleStateChange(from, to)
	})

	broker := net.JoinHostPort(host, strconv.Itoa(port))
	fmt.Fprintf(stdout, "Connecting to %s...\n", broker)
	if err := mgr.Connect(ctx, host, port); err != nil {
		log.Warn("connection failed", "broker", broker, "error", err)
		fmt.Fprintf(stdout, "-- could not connect to %s: %v\n", broker, err)
		return nil
	}
	defer func() {
		if disconnectErr := mgr.Disconnect(); disconnectErr != nil {
			log.Error("error disconnecting", "error", disconnectErr)
		}
		stats := mgr.Stats()
		log.Info("session closed",
			"published", stats.Published,
			"received", stats.Received,
			"dropped", stats.Dropped,
			"decrypt_failures", stats.DecryptFailures,
			"reconnects", stats.Reconnects,
		)
	}()

	if err := mgr.Subscribe(topic); err != nil {
		return err
	}

	if err := healthCheck(ctx, journal, mgr); err != nil {
		log.Warn("health check failed", "error", err)
	} else {
		log.Debug("all health checks passed")
	}
	if telemetry != nil {
		if err := telemetry.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB health check failed", "error", err)
		}
	}

	if journal != nil {
		if stored, countErr := journal.Count(ctx, topic); countErr == nil {
			log.Debug("history loaded", "topic", topic, "stored", stored)
		}
		if _, _, replayErr := loop.Replay(ctx, cfg.History.Replay); replayErr != nil {
			log.Warn("history replay failed", "error", replayErr)
		}
	}

	fmt.Fprintf(stdout, "Connected. Chatting on %q. Type 'quit' to leave.\n", topic)
	runErr := loop.Run(ctx)

	fmt.Fprintln(stdout, "\nLeaving chat...")
	if err := mgr.Unsubscribe(topic); err != nil {
		log.Warn("unsubscribe failed", "topic", topic, "error", err)
	}

	return runErr
}

// loadConfig loads GRAYCHAT_CONFIG or the default path. A missing default
// file means defaults plus environment; a missing named file is an error.
func loadConfig() (*config.Config, string, error) {
	path, explicit := getConfigPath()

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.LoadDefault()
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, "", nil
	}
	return nil, path, fmt.Errorf("loading config: %w", err)
}

// getConfigPath returns the configuration file path and whether it was
// named explicitly through GRAYCHAT_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("GRAYCHAT_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// openJournal opens the local journal, or returns nil when history is off.
func openJournal(ctx context.Context, cfg config.HistoryConfig, log *logging.Logger) (*history.Journal, error) {
	journal, err := history.Open(ctx, cfg)
	if errors.Is(err, history.ErrDisabled) {
		log.Debug("history disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	log.Info("history opened", "path", journal.Path())
	return journal, nil
}

// healthCheck verifies the journal and the broker session are usable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - journal: Local journal, or nil when history is off
//   - mgr: Connected session manager
//
// Returns:
//   - error: First failing component, nil if all healthy
func healthCheck(ctx context.Context, journal *history.Journal, mgr *session.Manager) error {
	if journal != nil {
		if err := journal.HealthCheck(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}

	if err := mgr.HealthCheck(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	return nil
}

// closeJournal prunes the journal to keep entries per topic and closes it.
func closeJournal(journal *history.Journal, keep int, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if pruned, err := journal.Prune(ctx, keep); err != nil {
		log.Warn("history prune failed", "error", err)
	} else if pruned > 0 {
		log.Debug("history pruned", "removed", pruned)
	}

	if err := journal.Close(); err != nil {
		log.Error("error closing history", "error", err)
	}
}

// connectTelemetry connects to InfluxDB when enabled. Telemetry is never
// required to chat, so failures are logged and nil is returned.
func connectTelemetry(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(ctx, cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Debug("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
		return nil
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}
