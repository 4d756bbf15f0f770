package detection

import (
	"math"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

func reading(p telemetry.Payload) *telemetry.Reading {
	return &telemetry.Reading{DeviceID: "dev-1", RecordedAt: time.Now(), Payload: p}
}

func TestHaversine(t *testing.T) {
	// One degree of longitude on the equator.
	got := haversine(0, 0, 0, 1)
	if math.Abs(got-111195) > 1 {
		t.Errorf("haversine(0,0,0,1) = %f, want ~111195", got)
	}
	if d := haversine(51.5, -0.1, 51.5, -0.1); d != 0 {
		t.Errorf("haversine(same point) = %f, want 0", d)
	}
}

func TestMovementRule(t *testing.T) {
	rule := MovementRule{ThresholdMeters: MovementThresholdMeters}

	tests := []struct {
		name     string
		previous *telemetry.Reading
		current  telemetry.GPS
		want     int
	}{
		{"no previous", nil, telemetry.GPS{Lat: 1, Lng: 1}, 0},
		{"stationary", reading(telemetry.GPS{Lat: 0, Lng: 0}), telemetry.GPS{Lat: 0, Lng: 0}, 0},
		{"jitter under threshold", reading(telemetry.GPS{Lat: 0, Lng: 0}), telemetry.GPS{Lat: 0, Lng: 0.00001}, 0},
		{"moved", reading(telemetry.GPS{Lat: 0, Lng: 0}), telemetry.GPS{Lat: 0, Lng: 0.001}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Evaluate(Input{Reading: reading(tt.current), Previous: tt.previous})
			if len(got) != tt.want {
				t.Fatalf("Evaluate() = %d findings, want %d", len(got), tt.want)
			}
		})
	}

	got := rule.Evaluate(Input{
		Reading:  reading(telemetry.GPS{Lat: 0, Lng: 0.001}),
		Previous: reading(telemetry.GPS{Lat: 0, Lng: 0}),
	})
	f := got[0]
	if f.Type != TypeGPSMovement || f.Severity != 2 {
		t.Errorf("finding = %s/%d, want %s/2", f.Type, f.Severity, TypeGPSMovement)
	}
	prev, _ := f.Metadata["previous"].(map[string]any)
	cur, _ := f.Metadata["current"].(map[string]any)
	if prev["lng"] != 0.0 || cur["lng"] != 0.001 {
		t.Errorf("metadata coordinates = %v / %v", prev, cur)
	}
	if drift, _ := f.Metadata["drift"].(float64); drift < 100 || drift > 120 {
		t.Errorf("drift = %v, want ~111m", f.Metadata["drift"])
	}
}

func TestGeofenceRule(t *testing.T) {
	fences := []geofence.Geofence{
		{ID: "geo-home", Lat: 10, Lng: 10, Radius: 0.5},
		{ID: "geo-work", Lat: 20, Lng: 20, Radius: 0.5},
	}

	tests := []struct {
		name    string
		point   telemetry.GPS
		fences  []geofence.Geofence
		wantIDs []string
	}{
		{"no fences", telemetry.GPS{Lat: 0, Lng: 0}, nil, nil},
		{"inside home", telemetry.GPS{Lat: 10, Lng: 10.3}, fences[:1], nil},
		{"on the boundary", telemetry.GPS{Lat: 10.5, Lng: 10}, fences[:1], nil},
		{"outside home", telemetry.GPS{Lat: 11, Lng: 10}, fences[:1], []string{"geo-home"}},
		{"inside home outside work", telemetry.GPS{Lat: 10, Lng: 10}, fences, []string{"geo-work"}},
		{"outside both", telemetry.GPS{Lat: 0, Lng: 0}, fences, []string{"geo-home", "geo-work"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GeofenceRule{}.Evaluate(Input{
				Reading: reading(tt.point),
				Context: Context{Geofences: tt.fences},
			})
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Evaluate() = %d findings, want %d", len(got), len(tt.wantIDs))
			}
			for i, f := range got {
				if f.Type != TypeGeofenceBreach || f.Severity != 3 {
					t.Errorf("finding = %s/%d", f.Type, f.Severity)
				}
				if f.Metadata["fence_id"] != tt.wantIDs[i] {
					t.Errorf("fence_id = %v, want %s", f.Metadata["fence_id"], tt.wantIDs[i])
				}
				if f.Metadata["lat"] != tt.point.Lat || f.Metadata["lng"] != tt.point.Lng {
					t.Errorf("metadata point = %v", f.Metadata)
				}
			}
		})
	}
}

func TestSuddenMovementRule(t *testing.T) {
	tests := []struct {
		name         string
		previous     *telemetry.Gyro
		current      telemetry.Gyro
		wantSeverity int // 0 means no finding
	}{
		{"no previous", nil, telemetry.Gyro{X: 500}, 0},
		{"still", &telemetry.Gyro{X: 0.5}, telemetry.Gyro{X: 1}, 0},
		{"woke from rest", &telemetry.Gyro{X: 1}, telemetry.Gyro{X: 3, Y: 4, Z: 1}, 3},
		{"moving but steady", &telemetry.Gyro{X: 50}, telemetry.Gyro{X: 60}, 0},
		{"large jump", &telemetry.Gyro{X: 50}, telemetry.Gyro{X: 200}, 3},
		{"large drop", &telemetry.Gyro{X: 300}, telemetry.Gyro{X: 10}, 3},
		{"severe", &telemetry.Gyro{X: 50}, telemetry.Gyro{X: 1200}, 4},
		{"exactly at rest threshold", &telemetry.Gyro{X: 2}, telemetry.Gyro{X: 6}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuddenMovementRule{}.Evaluate(Input{
				Reading: reading(tt.current),
				Context: Context{PreviousGyro: tt.previous},
			})
			if tt.wantSeverity == 0 {
				if len(got) != 0 {
					t.Fatalf("Evaluate() = %+v, want none", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("Evaluate() = %d findings, want 1", len(got))
			}
			if got[0].Type != TypeGyroSuddenMove || got[0].Severity != tt.wantSeverity {
				t.Errorf("finding = %s/%d, want severity %d", got[0].Type, got[0].Severity, tt.wantSeverity)
			}
		})
	}

	got := SuddenMovementRule{}.Evaluate(Input{
		Reading: reading(telemetry.Gyro{X: 3, Y: 4}),
		Context: Context{PreviousGyro: &telemetry.Gyro{Z: 1}},
	})
	if got[0].Metadata["magnitude"] != 5.0 || got[0].Metadata["prev_magnitude"] != 1.0 {
		t.Errorf("metadata = %v", got[0].Metadata)
	}
}

func TestUnknownTagRule(t *testing.T) {
	allowed := map[string]struct{}{"04A1": {}}

	tests := []struct {
		name         string
		tag          string
		previous     *telemetry.Reading
		wantSeverity int
	}{
		{"allowed tag", "04A1", nil, 0},
		{"unknown first scan", "FFFF", nil, 3},
		{"unknown after different tag", "FFFF", reading(telemetry.RFID{TagUID: "04A1"}), 3},
		{"unknown repeated", "FFFF", reading(telemetry.RFID{TagUID: "FFFF"}), 4},
		{"allowed repeated", "04A1", reading(telemetry.RFID{TagUID: "04A1"}), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnknownTagRule{}.Evaluate(Input{
				Reading:  reading(telemetry.RFID{TagUID: tt.tag}),
				Previous: tt.previous,
				Context:  Context{AllowedTags: allowed},
			})
			if tt.wantSeverity == 0 {
				if len(got) != 0 {
					t.Fatalf("Evaluate() = %+v, want none", got)
				}
				return
			}
			if len(got) != 1 || got[0].Severity != tt.wantSeverity {
				t.Fatalf("Evaluate() = %+v, want one finding with severity %d", got, tt.wantSeverity)
			}
			if got[0].Metadata["tag_uid"] != tt.tag {
				t.Errorf("tag_uid = %v, want %s", got[0].Metadata["tag_uid"], tt.tag)
			}
		})
	}

	// No allowed set at all: every tag is unknown.
	if got := (UnknownTagRule{}).Evaluate(Input{Reading: reading(telemetry.RFID{TagUID: "04A1"})}); len(got) != 1 {
		t.Errorf("Evaluate(nil allowed set) = %d findings, want 1", len(got))
	}
}

func TestBatteryDropRule(t *testing.T) {
	tests := []struct {
		name         string
		previous     int
		current      int
		wantSeverity int
	}{
		{"small drop", 90, 80, 0},
		{"charging", 50, 70, 0},
		{"threshold drop", 90, 75, 2},
		{"sudden drop", 90, 70, 2},
		{"severe at boundary", 90, 60, 4},
		{"severe drop", 90, 55, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BatteryDropRule{}.Evaluate(Input{
				Reading:  reading(telemetry.Battery{Level: tt.current}),
				Previous: reading(telemetry.Battery{Level: tt.previous}),
			})
			if tt.wantSeverity == 0 {
				if len(got) != 0 {
					t.Fatalf("Evaluate() = %+v, want none", got)
				}
				return
			}
			if len(got) != 1 || got[0].Severity != tt.wantSeverity {
				t.Fatalf("Evaluate() = %+v, want severity %d", got, tt.wantSeverity)
			}
			delta := tt.previous - tt.current
			if got[0].Metadata["previous"] != tt.previous ||
				got[0].Metadata["current"] != tt.current ||
				got[0].Metadata["delta"] != delta {
				t.Errorf("metadata = %v", got[0].Metadata)
			}
		})
	}

	if got := (BatteryDropRule{}).Evaluate(Input{Reading: reading(telemetry.Battery{Level: 10})}); len(got) != 0 {
		t.Errorf("Evaluate(no previous) = %+v, want none", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	for _, k := range telemetry.Kinds {
		if len(reg[k]) == 0 {
			t.Errorf("no rules registered for %s", k)
		}
	}
	gps := reg[telemetry.KindGPS]
	if len(gps) != 2 || gps[0].Name() != "gps_movement" || gps[1].Name() != "gps_geofence" {
		t.Errorf("gps rules out of order: %v", gps)
	}
}
