package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/influxdb"
)

// testConfig matches a local development InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "guardimoto-dev-token",
		Org:           "guardimoto",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestNilClient_WritesAreNoOps(t *testing.T) {
	var c *influxdb.Client

	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	c.WriteReading("dev-1", "gps", map[string]any{"lat": 1.0}, time.Now())
	c.WriteFinding("dev-1", "gps_idle_to_movement", 2, time.Now())
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() on nil client = %v, want ErrNotConnected", err)
	}
}

func TestWriteAndHealth(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	writeErrs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case writeErrs <- err:
		default:
		}
	})

	client.WriteReading("dev-test", "battery", map[string]any{"level": 70, "charging": false}, time.Now())
	client.WriteFinding("dev-test", "battery_sudden_drop", 2, time.Now())
	client.Flush()

	select {
	case err := <-writeErrs:
		t.Errorf("async write error = %v", err)
	default:
	}
}

func TestClose_ThenHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	client.WriteReading("dev-test", "battery", map[string]any{"level": 1}, time.Now())
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
}
