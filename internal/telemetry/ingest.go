package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/guard-imoto-core/internal/nfc"
)

// MaxClockSkew is how far past the server clock a reading timestamp may be.
// It also keeps recorded times inside the four-digit years the store sorts on.
const MaxClockSkew = 24 * time.Hour

// Ingest is the device-facing ingestion request:
//
//	{"type": "gps", "data": {"lat": 51.5, "lng": -0.12}, "timestamp": 1700000000}
//
// timestamp is epoch seconds and may be fractional; it defaults to now.
type Ingest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

type gpsData struct {
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng      *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Accuracy *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

type gyroData struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
	Z *float64 `json:"z" validate:"required"`
}

type batteryData struct {
	Level    *int `json:"level" validate:"required,gte=0,lte=100"`
	Charging bool `json:"charging"`
}

type rfidData struct {
	TagUID string `json:"tag_uid" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode validates the request and returns its kind-specific payload and
// recorded time. now is used when no timestamp is given.
func (in Ingest) Decode(now time.Time) (Payload, time.Time, error) {
	kind, err := ParseKind(in.Type)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(in.Data) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: missing data", ErrInvalidReading)
	}

	at := now.UTC()
	if in.Timestamp != nil {
		ts := *in.Timestamp
		if math.IsNaN(ts) || math.IsInf(ts, 0) || ts <= 0 {
			return nil, time.Time{}, fmt.Errorf("%w: bad timestamp", ErrInvalidReading)
		}
		sec, frac := math.Modf(ts)
		if sec > float64(now.Add(MaxClockSkew).Unix()) {
			return nil, time.Time{}, fmt.Errorf("%w: timestamp in the future", ErrInvalidReading)
		}
		at = time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	}

	payload, err := decodePayload(kind, in.Data)
	if err != nil {
		return nil, time.Time{}, err
	}
	return payload, at, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindGPS:
		var d gpsData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return GPS{Lat: *d.Lat, Lng: *d.Lng, Accuracy: d.Accuracy}, nil
	case KindGyro:
		var d gyroData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return Gyro{X: *d.X, Y: *d.Y, Z: *d.Z}, nil
	case KindBattery:
		var d batteryData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		return Battery{Level: *d.Level, Charging: d.Charging}, nil
	case KindRFID:
		var d rfidData
		if err := decodeInto(raw, &d); err != nil {
			return nil, err
		}
		uid, err := nfc.NormalizeUID(d.TagUID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidReading, err)
		}
		return RFID{TagUID: uid}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

func decodeInto(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return nil
}
