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

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client mirrors telemetry readings and findings into an InfluxDB bucket.
// Writes are batched and never block ingestion; failed batches go to the
// callback set with SetOnError. A nil *Client accepts writes and drops them.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and opens a batched write API on cfg's bucket.
// It returns ErrDisabled when mirroring is switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).                                //nolint:gosec // positive
		SetFlushInterval(uint(flushInterval(cfg).Milliseconds())) //nolint:gosec // positive
	ic := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, ic); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   ic,
		writeAPI: ic.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func flushInterval(cfg config.InfluxDBConfig) time.Duration {
	if cfg.FlushInterval <= 0 {
		return defaultFlushInterval
	}
	return time.Duration(cfg.FlushInterval) * time.Second
}

func ping(ctx context.Context, ic influxdb2.Client) error {
	ok, err := ic.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("server not ready")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError registers the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c != nil && !c.closed.Load()
}

// HealthCheck pings the server. A closed client reports ErrNotConnected.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. It is a no-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close sends buffered points and releases the client. Later writes are
// dropped.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeAPI.Flush()
		c.client.Close()
	})
	return nil
}
