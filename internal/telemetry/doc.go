// Package telemetry ingests and stores device readings.
//
// Four kinds exist (gps, gyro, battery, rfid), each in its own append-only
// history table. Readings order by recorded_at descending with the row id
// breaking ties in insertion order; Latest and SecondLatest expose the
// two-row window detection needs.
//
// Ingest serializes readings per device: the device lock is held from the
// append until detection for that reading finishes, so a reading's
// "previous" is never read while a newer reading is half-processed.
// Detection runs after the append commits and cannot fail the ingestion.
package telemetry
