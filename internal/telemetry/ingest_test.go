package telemetry

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/device"
)

func TestIngest_Decode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := 1700000000.25
	skewed := float64(now.Add(MaxClockSkew).Unix())
	tooFar := float64(now.Add(MaxClockSkew + time.Second).Unix())
	year10000 := 253402300800.0
	huge := 1e12
	negative := -5.0

	tests := []struct {
		name    string
		in      Ingest
		want    Payload
		wantAt  time.Time
		wantErr error
	}{
		{
			name:   "gps defaults to now",
			in:     Ingest{Type: "gps", Data: json.RawMessage(`{"lat":0,"lng":10.5}`)},
			want:   GPS{Lat: 0, Lng: 10.5},
			wantAt: now,
		},
		{
			name:   "gyro with fractional timestamp",
			in:     Ingest{Type: "gyro", Data: json.RawMessage(`{"x":0,"y":-1,"z":2}`), Timestamp: &ts},
			want:   Gyro{X: 0, Y: -1, Z: 2},
			wantAt: time.Unix(1700000000, 250_000_000).UTC(),
		},
		{
			name:   "battery level zero",
			in:     Ingest{Type: "battery", Data: json.RawMessage(`{"level":0,"charging":true}`)},
			want:   Battery{Level: 0, Charging: true},
			wantAt: now,
		},
		{
			name:   "rfid",
			in:     Ingest{Type: "rfid", Data: json.RawMessage(`{"tag_uid":"04:AA"}`)},
			want:   RFID{TagUID: "04:AA"},
			wantAt: now,
		},
		{
			name:   "timestamp at the skew limit",
			in:     Ingest{Type: "battery", Data: json.RawMessage(`{"level":50}`), Timestamp: &skewed},
			want:   Battery{Level: 50},
			wantAt: now.Add(MaxClockSkew),
		},
		{
			name:   "rfid uid trimmed",
			in:     Ingest{Type: "rfid", Data: json.RawMessage(`{"tag_uid":"  04:AA "}`)},
			want:   RFID{TagUID: "04:AA"},
			wantAt: now,
		},
		{name: "timestamp past skew", in: Ingest{Type: "battery", Data: json.RawMessage(`{"level":50}`), Timestamp: &tooFar}, wantErr: ErrInvalidReading},
		{name: "timestamp year 10000", in: Ingest{Type: "battery", Data: json.RawMessage(`{"level":50}`), Timestamp: &year10000}, wantErr: ErrInvalidReading},
		{name: "timestamp 1e12", in: Ingest{Type: "battery", Data: json.RawMessage(`{"level":50}`), Timestamp: &huge}, wantErr: ErrInvalidReading},
		{name: "negative timestamp", in: Ingest{Type: "battery", Data: json.RawMessage(`{"level":50}`), Timestamp: &negative}, wantErr: ErrInvalidReading},
		{name: "rfid blank tag", in: Ingest{Type: "rfid", Data: json.RawMessage(`{"tag_uid":"   "}`)}, wantErr: ErrInvalidReading},
		{name: "rfid tag too long", in: Ingest{Type: "rfid", Data: json.RawMessage(`{"tag_uid":"` + strings.Repeat("A", 65) + `"}`)}, wantErr: ErrInvalidReading},
		{name: "unknown type", in: Ingest{Type: "sonar", Data: json.RawMessage(`{}`)}, wantErr: ErrUnsupportedKind},
		{name: "missing data", in: Ingest{Type: "gps"}, wantErr: ErrInvalidReading},
		{name: "gps missing lng", in: Ingest{Type: "gps", Data: json.RawMessage(`{"lat":1}`)}, wantErr: ErrInvalidReading},
		{name: "gps lat out of range", in: Ingest{Type: "gps", Data: json.RawMessage(`{"lat":91,"lng":0}`)}, wantErr: ErrInvalidReading},
		{name: "battery over 100", in: Ingest{Type: "battery", Data: json.RawMessage(`{"level":101}`)}, wantErr: ErrInvalidReading},
		{name: "battery missing level", in: Ingest{Type: "battery", Data: json.RawMessage(`{"charging":false}`)}, wantErr: ErrInvalidReading},
		{name: "rfid empty tag", in: Ingest{Type: "rfid", Data: json.RawMessage(`{"tag_uid":""}`)}, wantErr: ErrInvalidReading},
		{name: "malformed json", in: Ingest{Type: "gyro", Data: json.RawMessage(`{"x":"a"}`)}, wantErr: ErrInvalidReading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, at, err := tt.in.Decode(now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() payload = %#v, want %#v", got, tt.want)
			}
			if !at.Equal(tt.wantAt) {
				t.Errorf("Decode() at = %v, want %v", at, tt.wantAt)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	off := device.DefaultFeatureFlags()
	off.GPSEnabled = false
	off.GyroscopeEnabled = false

	tests := []struct {
		kind    Kind
		flags   device.FeatureFlags
		wantErr error
	}{
		{KindGPS, device.DefaultFeatureFlags(), nil},
		{KindGPS, off, ErrFeatureDisabled},
		{KindGyro, off, ErrFeatureDisabled},
		{KindBattery, off, nil},
		{KindRFID, off, nil},
		{Kind("sonar"), off, ErrUnsupportedKind},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := Allowed(tt.kind, tt.flags)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Allowed(%s) error = %v, want %v", tt.kind, err, tt.wantErr)
			}
		})
	}
}

func TestReading_MarshalJSON(t *testing.T) {
	r := Reading{ID: 7, DeviceID: "dev-1", RecordedAt: time.Unix(0, 0).UTC(), Payload: Battery{Level: 50}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if got["type"] != "battery" {
		t.Errorf("type = %v", got["type"])
	}
	data, _ := got["data"].(map[string]any)
	if data["level"] != float64(50) {
		t.Errorf("data = %v", got["data"])
	}
}
