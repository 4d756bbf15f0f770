package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrConfigNotFound is returned when a device has no config row.
	ErrConfigNotFound = errors.New("device: config not found")

	// ErrDeviceExists is returned when a serial number or channel is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrAlreadyPaired is returned when pairing a device that is already paired.
	ErrAlreadyPaired = errors.New("device: already paired")

	// ErrNotPaired is returned when an operation needs a paired device.
	ErrNotPaired = errors.New("device: not paired")

	// ErrPairingCodeConsumed is returned when an unpaired device has no
	// outstanding pairing code.
	ErrPairingCodeConsumed = errors.New("device: pairing code already used")

	// ErrInvalidPairingCode is returned when the presented code does not match.
	ErrInvalidPairingCode = errors.New("device: invalid pairing code")

	// ErrNotOwner is returned when the caller does not own the device.
	ErrNotOwner = errors.New("device: not owned by caller")

	// ErrInvalidSerial is returned for a serial number outside the topic-safe
	// charset.
	ErrInvalidSerial = errors.New("device: invalid serial number")

	// ErrInvalidConfig is returned when a config patch fails validation.
	ErrInvalidConfig = errors.New("device: invalid config")
)
