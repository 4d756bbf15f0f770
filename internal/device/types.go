package device

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// serialPattern limits serials to characters that are safe inside MQTT
// topics, ACL patterns and broker usernames.
var serialPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSerial reports whether s can be used as a serial number.
func ValidSerial(s string) bool {
	return serialPattern.MatchString(s)
}

// Device is a registered field device.
type Device struct {
	ID           string     `json:"id"`
	SerialNumber string     `json:"serial_number"`
	OwnerID      *string    `json:"owner_id,omitempty"`
	Name         string     `json:"device_name"`
	Color        string     `json:"device_color"`
	Enabled      bool       `json:"device_enabled"`
	Paired       bool       `json:"paired"`
	PairingCode  *string    `json:"-"`
	PairedAt     *time.Time `json:"paired_at,omitempty"`
	Channel      string     `json:"channel"`
	SecretHash   string     `json:"-"`
	IsOnline     bool       `json:"is_online"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// OwnedBy reports whether userID owns d.
func (d *Device) OwnedBy(userID string) bool {
	return d.OwnerID != nil && *d.OwnerID == userID
}

// FeatureFlags is the configuration a device needs to operate. It is the
// only part of the device record sent back to the device itself.
type FeatureFlags struct {
	Relay1Enabled         bool   `json:"relay1_enabled"`
	Relay1Override        bool   `json:"relay1_override"`
	Relay1AlarmType       string `json:"relay1_alarm_type"`
	Relay1IntervalSec     int    `json:"relay1_interval_sec"`
	Relay1TriggerMode     string `json:"relay1_trigger_mode"`
	Relay1DelaySec        int    `json:"relay1_delay_sec"`
	Relay2Enabled         bool   `json:"relay2_enabled"`
	Relay2Override        bool   `json:"relay2_override"`
	BatterySaverEnabled   bool   `json:"battery_saver_enabled"`
	BatterySaverThreshold int    `json:"battery_saver_threshold"`
	GyroscopeEnabled      bool   `json:"gyroscope_enabled"`
	GPSEnabled            bool   `json:"gps_enabled"`
	SMSAlertsEnabled      bool   `json:"sms_alerts_enabled"`
}

// DefaultFeatureFlags mirrors the column defaults of device_config.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		Relay1AlarmType:       "continuous",
		Relay1TriggerMode:     "immediate",
		BatterySaverThreshold: 20,
		GyroscopeEnabled:      true,
		GPSEnabled:            true,
	}
}

// Config is the stored configuration row for a device.
type Config struct {
	DeviceID string `json:"device_id"`
	FeatureFlags
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigPatch is a partial update of a device's owner-editable fields.
// Nil fields are left unchanged. Pairing state is deliberately absent.
type ConfigPatch struct {
	DeviceName    *string `json:"device_name" validate:"omitempty,max=64"`
	DeviceColor   *string `json:"device_color" validate:"omitempty,max=32"`
	DeviceEnabled *bool   `json:"device_enabled"`

	Relay1Enabled         *bool   `json:"relay1_enabled"`
	Relay1Override        *bool   `json:"relay1_override"`
	Relay1AlarmType       *string `json:"relay1_alarm_type" validate:"omitempty,min=1,max=32"`
	Relay1IntervalSec     *int    `json:"relay1_interval_sec" validate:"omitempty,gte=0,lte=86400"`
	Relay1TriggerMode     *string `json:"relay1_trigger_mode" validate:"omitempty,min=1,max=32"`
	Relay1DelaySec        *int    `json:"relay1_delay_sec" validate:"omitempty,gte=0,lte=86400"`
	Relay2Enabled         *bool   `json:"relay2_enabled"`
	Relay2Override        *bool   `json:"relay2_override"`
	BatterySaverEnabled   *bool   `json:"battery_saver_enabled"`
	BatterySaverThreshold *int    `json:"battery_saver_threshold" validate:"omitempty,gte=0,lte=100"`
	GyroscopeEnabled      *bool   `json:"gyroscope_enabled"`
	GPSEnabled            *bool   `json:"gps_enabled"`
	SMSAlertsEnabled      *bool   `json:"sms_alerts_enabled"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field bounds and that at least one field is set.
func (p ConfigPatch) Validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: no updatable fields", ErrInvalidConfig)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p ConfigPatch) IsEmpty() bool {
	return !p.touchesDevice() && !p.touchesConfig()
}

func (p ConfigPatch) touchesDevice() bool {
	return p.DeviceName != nil || p.DeviceColor != nil || p.DeviceEnabled != nil
}

func (p ConfigPatch) touchesConfig() bool {
	return p.Relay1Enabled != nil || p.Relay1Override != nil || p.Relay1AlarmType != nil ||
		p.Relay1IntervalSec != nil || p.Relay1TriggerMode != nil || p.Relay1DelaySec != nil ||
		p.Relay2Enabled != nil || p.Relay2Override != nil ||
		p.BatterySaverEnabled != nil || p.BatterySaverThreshold != nil ||
		p.GyroscopeEnabled != nil || p.GPSEnabled != nil || p.SMSAlertsEnabled != nil
}

// applyDevice copies the device-level fields of p onto d.
func (p ConfigPatch) applyDevice(d *Device) {
	set(&d.Name, p.DeviceName)
	set(&d.Color, p.DeviceColor)
	set(&d.Enabled, p.DeviceEnabled)
}

// applyFlags copies the feature-flag fields of p onto f.
func (p ConfigPatch) applyFlags(f *FeatureFlags) {
	set(&f.Relay1Enabled, p.Relay1Enabled)
	set(&f.Relay1Override, p.Relay1Override)
	set(&f.Relay1AlarmType, p.Relay1AlarmType)
	set(&f.Relay1IntervalSec, p.Relay1IntervalSec)
	set(&f.Relay1TriggerMode, p.Relay1TriggerMode)
	set(&f.Relay1DelaySec, p.Relay1DelaySec)
	set(&f.Relay2Enabled, p.Relay2Enabled)
	set(&f.Relay2Override, p.Relay2Override)
	set(&f.BatterySaverEnabled, p.BatterySaverEnabled)
	set(&f.BatterySaverThreshold, p.BatterySaverThreshold)
	set(&f.GyroscopeEnabled, p.GyroscopeEnabled)
	set(&f.GPSEnabled, p.GPSEnabled)
	set(&f.SMSAlertsEnabled, p.SMSAlertsEnabled)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
