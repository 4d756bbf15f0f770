package detection

import (
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// Context is the kind-specific data a rule set may consult. Only the
// fields relevant to the reading's kind are populated.
type Context struct {
	// AllowedTags holds the NFC tag UIDs linked to the device (rfid).
	AllowedTags map[string]struct{}
	// Geofences holds the device's fences (gps).
	Geofences []geofence.Geofence
	// PreviousGyro is the gyro sample before the current one (gyro).
	PreviousGyro *telemetry.Gyro
}

// Input is what a rule evaluates. Previous is nil for a device's first
// reading of a kind.
type Input struct {
	DeviceID string
	Reading  *telemetry.Reading
	Previous *telemetry.Reading
	Context  Context
}

// Rule is a stateless check over one reading. It returns zero or more
// findings; the engine fills in ID, DeviceID and CreatedAt.
type Rule interface {
	Name() string
	Evaluate(in Input) []Finding
}

// Registry maps each kind to its rules in evaluation order.
type Registry map[telemetry.Kind][]Rule

// DefaultRegistry returns the built-in rule set.
func DefaultRegistry() Registry {
	return Registry{
		telemetry.KindGPS:     {MovementRule{ThresholdMeters: MovementThresholdMeters}, GeofenceRule{}},
		telemetry.KindGyro:    {SuddenMovementRule{}},
		telemetry.KindRFID:    {UnknownTagRule{}},
		telemetry.KindBattery: {BatteryDropRule{}},
	}
}
