package access

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/mqtt"
)

// Event names published on a device's control topic.
const (
	EventDeviceUpdate  = "device_update"
	EventEnterScanMode = "enter_scan_mode"
)

// Event is the control-topic envelope.
type Event struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Notifier publishes events to a device's control topic.
type Notifier struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewNotifier creates a Notifier.
func NewNotifier(pub Publisher, topics mqtt.Topics) *Notifier {
	return &Notifier{pub: pub, topics: topics}
}

// DeviceUpdate tells the device its record or config changed.
func (n *Notifier) DeviceUpdate(_ context.Context, channel string, device, config any) error {
	return n.publish(channel, Event{
		Event: EventDeviceUpdate,
		Payload: map[string]any{
			"device": device,
			"config": config,
		},
	})
}

// EnterScanMode asks the device to start scanning for an NFC tag.
func (n *Notifier) EnterScanMode(_ context.Context, channel string, at time.Time) error {
	return n.publish(channel, Event{Event: EventEnterScanMode, Timestamp: at.UnixMilli()})
}

func (n *Notifier) publish(channel string, ev Event) error {
	if err := n.pub.PublishJSON(n.topics.DeviceControl(channel), ev); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Event, err)
	}
	return nil
}
