package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
)

// testConfig points at a local broker. Tests that need one skip when it is absent.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "guardimoto-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "guardimoto-test",
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("no MQTT broker available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestTopics(t *testing.T) {
	topics := NewTopics("guardimoto/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceControl", topics.DeviceControl("device-SN1-1"), "guardimoto/device/device-SN1-1/control"},
		{"DeviceTelemetry", topics.DeviceTelemetry("device-SN1-1"), "guardimoto/device/device-SN1-1/telemetry"},
		{"AllDeviceTelemetry", topics.AllDeviceTelemetry(), "guardimoto/device/+/telemetry"},
		{"SystemStatus", topics.SystemStatus(), "guardimoto/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestTopics_ChannelFromTelemetry(t *testing.T) {
	topics := NewTopics("guardimoto")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"guardimoto/device/device-SN1-1/telemetry", "device-SN1-1", true},
		{"guardimoto/device/device-SN1-1/control", "", false},
		{"other/device/device-SN1-1/telemetry", "", false},
		{"guardimoto/device//telemetry", "", false},
		{"guardimoto/device/a/b/telemetry", "", false},
	}
	for _, tt := range tests {
		got, ok := topics.ChannelFromTelemetry(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ChannelFromTelemetry(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("t", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("t", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscribe should not be tracked")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestDispatch_RecoversPanicsAndLogsErrors(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one panic record", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error record", logger.warns)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var p statusPayload
	if err := json.Unmarshal(buildStatusPayload("core-1", "offline", "graceful_shutdown"), &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "core-1" || p.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", p)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)

	received := make(chan []byte, 1)
	channel := "device-roundtrip-1"
	err := client.Subscribe(client.Topics().AllDeviceTelemetry(), 1, func(topic string, payload []byte) error {
		if got, ok := client.Topics().ChannelFromTelemetry(topic); ok && got == channel {
			received <- payload
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.PublishJSON(client.Topics().DeviceTelemetry(channel), map[string]string{"type": "gps"}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		if !strings.Contains(string(payload), "gps") {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
