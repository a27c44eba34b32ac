package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/graychat/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Used when the config leaves batching unset.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

var errUnhealthy = errors.New("server reports unhealthy")

// Client records chat telemetry in InfluxDB v2.
//
// Only metadata is written: topics, directions, outcomes, sizes and
// connection state changes. Message text never leaves the process.
//
// Writes go through the library's batching WriteAPI and never block the
// caller. A nil *Client and a closed one both ignore writes, so callers can
// hold a *Client without checking whether telemetry is enabled.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	open   atomic.Bool

	errMu   sync.Mutex
	onError func(error)
}

// Connect pings the server at cfg.URL and returns a client writing to
// cfg.Org / cfg.Bucket.
//
// Returns:
//   - *Client: Client with an open write API
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed when
//     the server cannot be reached or is unhealthy
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options(cfg))
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)

	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

// options maps the batching settings onto client options. FlushInterval is
// configured in seconds; the library wants milliseconds.
func options(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive by construction
}

// ping asks the server whether it is ready, bounded by pingTimeout.
func ping(ctx context.Context, influx influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errUnhealthy
	}
	return nil
}

// forwardErrors hands asynchronous write failures to the OnError callback.
// It ends when the write API is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.Lock()
		report := c.onError
		c.errMu.Unlock()

		if report != nil {
			report(err)
		}
	}
}

// SetOnError registers fn for write failures. Writes are batched, so these
// surface after the call that queued the point has returned.
func (c *Client) SetOnError(fn func(error)) {
	if c == nil {
		return
	}
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// IsConnected reports whether the client is open for writes.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// HealthCheck pings the server.
//
// Returns:
//   - error: ErrNotConnected after Close, otherwise the ping failure
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb: health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now and waits for the batch to be handed off.
// It does nothing once the client is closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close sends anything still buffered and releases the client.
// Later calls, and calls on a nil client, return nil.
func (c *Client) Close() error {
	if c == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
