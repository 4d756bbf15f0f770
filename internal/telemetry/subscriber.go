package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/mqtt"
)

// ChannelResolver maps a channel identifier to its device.
type ChannelResolver interface {
	GetByChannel(ctx context.Context, channel string) (*device.Device, error)
}

// Subscriber feeds MQTT telemetry messages into a Service. The broker ACL
// granted on pairing is what authenticates the publishing device.
type Subscriber struct {
	svc     *Service
	devices ChannelResolver
	topics  mqtt.Topics
	logger  Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(svc *Service, devices ChannelResolver, topics mqtt.Topics) *Subscriber {
	return &Subscriber{svc: svc, devices: devices, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (s *Subscriber) SetLogger(logger Logger) {
	s.logger = logger
}

// Topic returns the wildcard topic to subscribe to.
func (s *Subscriber) Topic() string {
	return s.topics.AllDeviceTelemetry()
}

// Handle processes one message. It matches mqtt.MessageHandler.
func (s *Subscriber) Handle(topic string, payload []byte) error {
	channel, ok := s.topics.ChannelFromTelemetry(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrUnknownChannel, topic)
	}

	ctx := context.Background()
	d, err := s.devices.GetByChannel(ctx, channel)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	if err != nil {
		return err
	}
	if !d.Paired {
		return fmt.Errorf("%w: channel %s", device.ErrNotPaired, channel)
	}

	var in Ingest
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}

	r, err := s.svc.Ingest(ctx, d.ID, in)
	if err != nil {
		return err
	}
	s.logger.Debug("mqtt reading ingested", "device_id", d.ID, "kind", r.Kind())
	return nil
}
