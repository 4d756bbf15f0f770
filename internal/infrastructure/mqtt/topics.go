package mqtt

import (
	"fmt"
	"strings"
)

// DynamicSecurityTopic is the Mosquitto dynamic-security plugin control topic.
const DynamicSecurityTopic = "$CONTROL/dynamic-security/v1"

// Topics builds the topic hierarchy under a deployment prefix:
//
//	<prefix>/device/<channel>/control     server → device (device_update, enter_scan_mode)
//	<prefix>/device/<channel>/telemetry   device → server (ingestion payloads)
//	<prefix>/system/status                retained core online/offline status
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimSuffix(prefix, "/")}
}

// DeviceControl returns the topic a device subscribes to for server events.
//
// Example: guardimoto/device/device-SN1-1700000000000/control
func (t Topics) DeviceControl(channel string) string {
	return fmt.Sprintf("%s/device/%s/control", t.Prefix, channel)
}

// DeviceTelemetry returns the topic a device publishes readings to.
//
// Example: guardimoto/device/device-SN1-1700000000000/telemetry
func (t Topics) DeviceTelemetry(channel string) string {
	return fmt.Sprintf("%s/device/%s/telemetry", t.Prefix, channel)
}

// AllDeviceTelemetry matches every device's telemetry topic.
//
// Pattern: guardimoto/device/+/telemetry
func (t Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/device/+/telemetry", t.Prefix)
}

// SystemStatus returns the retained core status topic.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Prefix)
}

// ChannelFromTelemetry extracts the channel from a concrete telemetry topic.
func (t Topics) ChannelFromTelemetry(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/device/")
	if !ok {
		return "", false
	}
	channel, ok := strings.CutSuffix(rest, "/telemetry")
	if !ok || channel == "" || strings.Contains(channel, "/") {
		return "", false
	}
	return channel, true
}
