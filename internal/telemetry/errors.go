package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrUnsupportedKind is returned for a telemetry type outside gps, gyro, battery, rfid.
	ErrUnsupportedKind = errors.New("telemetry: unsupported type")

	// ErrInvalidReading is returned when a payload is missing or malformed.
	ErrInvalidReading = errors.New("telemetry: invalid reading")

	// ErrFeatureDisabled is returned when the kind is switched off in the device config.
	ErrFeatureDisabled = errors.New("telemetry: feature disabled")

	// ErrNoReading is returned when no reading exists at the requested position.
	ErrNoReading = errors.New("telemetry: no reading")

	// ErrUnknownChannel is returned when an MQTT topic names no known device.
	ErrUnknownChannel = errors.New("telemetry: unknown channel")

	// ErrClosed is returned by Ingest once the service has been closed.
	ErrClosed = errors.New("telemetry: service closed")
)
