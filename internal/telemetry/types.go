package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is a telemetry type.
type Kind string

// Telemetry kinds.
const (
	KindGPS     Kind = "gps"
	KindGyro    Kind = "gyro"
	KindBattery Kind = "battery"
	KindRFID    Kind = "rfid"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindGPS, KindGyro, KindBattery, KindRFID}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGPS, KindGyro, KindBattery, KindRFID:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Payload is the kind-specific body of a reading. The set of
// implementations is closed: GPS, Gyro, Battery and RFID.
type Payload interface {
	Kind() Kind
	fields() map[string]any
}

// GPS is a location fix in degrees.
type GPS struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Gyro is a 3-axis orientation sample.
type Gyro struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Battery is a charge level in percent.
type Battery struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

// RFID is a scanned tag.
type RFID struct {
	TagUID string `json:"tag_uid"`
}

// Kind implements Payload.
func (GPS) Kind() Kind { return KindGPS }

// Kind implements Payload.
func (Gyro) Kind() Kind { return KindGyro }

// Kind implements Payload.
func (Battery) Kind() Kind { return KindBattery }

// Kind implements Payload.
func (RFID) Kind() Kind { return KindRFID }

func (g GPS) fields() map[string]any {
	f := map[string]any{"lat": g.Lat, "lng": g.Lng}
	if g.Accuracy != nil {
		f["accuracy"] = *g.Accuracy
	}
	return f
}

func (g Gyro) fields() map[string]any {
	return map[string]any{"x": g.X, "y": g.Y, "z": g.Z}
}

func (b Battery) fields() map[string]any {
	return map[string]any{"level": b.Level, "charging": b.Charging}
}

func (r RFID) fields() map[string]any {
	return map[string]any{"tag_uid": r.TagUID}
}

// Reading is one stored telemetry sample.
type Reading struct {
	ID         int64
	DeviceID   string
	RecordedAt time.Time
	Payload    Payload
}

// Kind returns the reading's kind.
func (r *Reading) Kind() Kind {
	return r.Payload.Kind()
}

// Fields returns the payload as a flat field map.
func (r *Reading) Fields() map[string]any {
	return r.Payload.fields()
}

// MarshalJSON renders the reading with its payload under "data".
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         int64     `json:"id"`
		DeviceID   string    `json:"device_id"`
		Type       Kind      `json:"type"`
		Data       Payload   `json:"data"`
		RecordedAt time.Time `json:"recorded_at"`
	}{r.ID, r.DeviceID, r.Payload.Kind(), r.Payload, r.RecordedAt})
}
