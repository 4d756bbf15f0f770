package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTelemetry = "telemetry"
	MeasurementFinding   = "finding"
)

// WriteReading mirrors one accepted telemetry reading.
//
// Parameters:
//   - deviceID: Internal device id (tag)
//   - kind: gps, gyro, battery or rfid (tag)
//   - fields: Numeric/boolean/string fields of the reading
//   - recordedAt: The reading's own timestamp, not the write time
//
// Example:
//
//	client.WriteReading("dev-1", "battery", map[string]any{"level": 70, "charging": false}, ts)
func (c *Client) WriteReading(deviceID, kind string, fields map[string]any, recordedAt time.Time) {
	c.WritePointWithTime(MeasurementTelemetry,
		map[string]string{"device_id": deviceID, "kind": kind},
		fields,
		recordedAt,
	)
}

// WriteFinding mirrors one detection finding. Severity is stored as a field
// so it can be aggregated; the finding type is a tag.
func (c *Client) WriteFinding(deviceID, findingType string, severity int, createdAt time.Time) {
	c.WritePointWithTime(MeasurementFinding,
		map[string]string{"device_id": deviceID, "type": findingType},
		map[string]any{"severity": severity},
		createdAt,
	)
}

// WritePointWithTime writes a custom point with a specific timestamp.
// It is a no-op on a nil or closed client.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
