package detection

import "time"

// Finding types.
const (
	TypeGPSMovement       = "gps_idle_to_movement"
	TypeGeofenceBreach    = "gps_geofence_breach"
	TypeGyroSuddenMove    = "gyro_sudden_movement"
	TypeRFIDUnknownTag    = "rfid_unknown_tag"
	TypeBatterySuddenDrop = "battery_sudden_drop"
)

// Severity bounds. Higher is worse.
const (
	SeverityMin = 1
	SeverityMax = 4
)

// Finding is an anomaly flagged by a rule. Findings are immutable once
// persisted.
type Finding struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Type      string         `json:"type"`
	Severity  int            `json:"severity"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
