package detection

import (
	"math"

	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// MovementThresholdMeters is the drift above which a gps fix counts as
// movement.
const MovementThresholdMeters = 5.0

// Gyro thresholds, in sensor units.
const (
	gyroIdleMagnitude    = 2.0
	gyroMovingMagnitude  = 5.0
	gyroJumpDelta        = 100.0
	gyroSevereMagnitude  = 1000.0
	batteryDropThreshold = 15
	batteryDropSevere    = 30
)

// MovementRule flags a gps fix that moved more than ThresholdMeters from
// the previous one.
type MovementRule struct {
	ThresholdMeters float64
}

// Name implements Rule.
func (MovementRule) Name() string { return "gps_movement" }

// Evaluate implements Rule.
func (r MovementRule) Evaluate(in Input) []Finding {
	cur, ok := in.Reading.Payload.(telemetry.GPS)
	if !ok || in.Previous == nil {
		return nil
	}
	prev, ok := in.Previous.Payload.(telemetry.GPS)
	if !ok {
		return nil
	}

	drift := haversine(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
	if drift <= r.ThresholdMeters {
		return nil
	}
	return []Finding{{
		Type:     TypeGPSMovement,
		Severity: 2,
		Metadata: map[string]any{
			"previous": map[string]any{"lat": prev.Lat, "lng": prev.Lng},
			"current":  map[string]any{"lat": cur.Lat, "lng": cur.Lng},
			"drift":    drift,
		},
	}}
}

// GeofenceRule flags a gps fix outside any of the device's fences, one
// finding per fence.
type GeofenceRule struct{}

// Name implements Rule.
func (GeofenceRule) Name() string { return "gps_geofence" }

// Evaluate implements Rule.
func (GeofenceRule) Evaluate(in Input) []Finding {
	cur, ok := in.Reading.Payload.(telemetry.GPS)
	if !ok {
		return nil
	}

	var out []Finding
	for _, fence := range in.Context.Geofences {
		if planarDistance(fence.Lat, fence.Lng, cur.Lat, cur.Lng) <= fence.Radius {
			continue
		}
		out = append(out, Finding{
			Type:     TypeGeofenceBreach,
			Severity: 3,
			Metadata: map[string]any{
				"lat":      cur.Lat,
				"lng":      cur.Lng,
				"fence_id": fence.ID,
			},
		})
	}
	return out
}

// SuddenMovementRule flags a device jolted out of rest or a large jump in
// gyro magnitude.
type SuddenMovementRule struct{}

// Name implements Rule.
func (SuddenMovementRule) Name() string { return "gyro_sudden_movement" }

// Evaluate implements Rule.
func (SuddenMovementRule) Evaluate(in Input) []Finding {
	cur, ok := in.Reading.Payload.(telemetry.Gyro)
	if !ok || in.Context.PreviousGyro == nil {
		return nil
	}
	prev := in.Context.PreviousGyro

	mag := magnitude(cur.X, cur.Y, cur.Z)
	prevMag := magnitude(prev.X, prev.Y, prev.Z)

	wokeUp := prevMag < gyroIdleMagnitude && mag > gyroMovingMagnitude
	jumped := math.Abs(mag-prevMag) > gyroJumpDelta
	if !wokeUp && !jumped {
		return nil
	}

	severity := 3
	if mag > gyroSevereMagnitude {
		severity = 4
	}
	return []Finding{{
		Type:     TypeGyroSuddenMove,
		Severity: severity,
		Metadata: map[string]any{
			"prev_magnitude": prevMag,
			"magnitude":      mag,
		},
	}}
}

// UnknownTagRule flags a scanned tag that is not linked to the device.
// A repeat scan of the same unknown tag escalates.
type UnknownTagRule struct{}

// Name implements Rule.
func (UnknownTagRule) Name() string { return "rfid_unknown_tag" }

// Evaluate implements Rule.
func (UnknownTagRule) Evaluate(in Input) []Finding {
	cur, ok := in.Reading.Payload.(telemetry.RFID)
	if !ok {
		return nil
	}
	if _, allowed := in.Context.AllowedTags[cur.TagUID]; allowed {
		return nil
	}

	severity := 3
	if in.Previous != nil {
		if prev, ok := in.Previous.Payload.(telemetry.RFID); ok && prev.TagUID == cur.TagUID {
			severity = 4
		}
	}
	return []Finding{{
		Type:     TypeRFIDUnknownTag,
		Severity: severity,
		Metadata: map[string]any{"tag_uid": cur.TagUID},
	}}
}

// BatteryDropRule flags a charge level that fell sharply since the
// previous reading.
type BatteryDropRule struct{}

// Name implements Rule.
func (BatteryDropRule) Name() string { return "battery_sudden_drop" }

// Evaluate implements Rule.
func (BatteryDropRule) Evaluate(in Input) []Finding {
	cur, ok := in.Reading.Payload.(telemetry.Battery)
	if !ok || in.Previous == nil {
		return nil
	}
	prev, ok := in.Previous.Payload.(telemetry.Battery)
	if !ok {
		return nil
	}

	delta := prev.Level - cur.Level
	if delta < batteryDropThreshold {
		return nil
	}

	severity := 2
	if delta >= batteryDropSevere {
		severity = 4
	}
	return []Finding{{
		Type:     TypeBatterySuddenDrop,
		Severity: severity,
		Metadata: map[string]any{
			"previous": prev.Level,
			"current":  cur.Level,
			"delta":    delta,
		},
	}}
}
