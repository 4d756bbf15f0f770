// Package influxdb mirrors telemetry readings and detection findings into
// InfluxDB v2 for dashboards and long-range analysis.
//
// SQLite remains the system of record; the mirror is optional, write-only,
// and never blocks ingestion (points are batched by the client library).
//
// Measurements:
//
//	telemetry  tags: device_id, kind   fields: reading values
//	finding    tags: device_id, type   fields: severity
package influxdb
