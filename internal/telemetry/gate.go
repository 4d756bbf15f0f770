package telemetry

import (
	"fmt"

	"github.com/nerrad567/guard-imoto-core/internal/device"
)

// Allowed reports whether the device config accepts readings of kind.
// gps and gyro follow their feature flags; battery and rfid are always on.
func Allowed(kind Kind, flags device.FeatureFlags) error {
	switch kind {
	case KindGPS:
		if !flags.GPSEnabled {
			return fmt.Errorf("%w: gps", ErrFeatureDisabled)
		}
	case KindGyro:
		if !flags.GyroscopeEnabled {
			return fmt.Errorf("%w: gyroscope", ErrFeatureDisabled)
		}
	case KindBattery, KindRFID:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return nil
}
