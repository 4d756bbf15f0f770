package detection

import (
	"context"
	"fmt"

	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// TagSource lists the NFC tag UIDs linked to a device.
type TagSource interface {
	AllowedTags(ctx context.Context, deviceID string) ([]string, error)
}

// FenceSource lists a device's geofences.
type FenceSource interface {
	ListByDevice(ctx context.Context, deviceID string) ([]geofence.Geofence, error)
}

// ContextLoader assembles the per-kind Context. Either source may be nil,
// in which case the corresponding context is empty.
type ContextLoader struct {
	tags   TagSource
	fences FenceSource
}

// NewContextLoader creates a ContextLoader.
func NewContextLoader(tags TagSource, fences FenceSource) *ContextLoader {
	return &ContextLoader{tags: tags, fences: fences}
}

// Load returns the context for a reading of kind. previous is the reading
// before the current one, or nil.
func (l *ContextLoader) Load(ctx context.Context, deviceID string, kind telemetry.Kind, previous *telemetry.Reading) (Context, error) {
	var c Context

	switch kind {
	case telemetry.KindRFID:
		if l.tags == nil {
			return c, nil
		}
		uids, err := l.tags.AllowedTags(ctx, deviceID)
		if err != nil {
			return c, fmt.Errorf("loading allowed tags: %w", err)
		}
		c.AllowedTags = make(map[string]struct{}, len(uids))
		for _, uid := range uids {
			c.AllowedTags[uid] = struct{}{}
		}

	case telemetry.KindGPS:
		if l.fences == nil {
			return c, nil
		}
		fences, err := l.fences.ListByDevice(ctx, deviceID)
		if err != nil {
			return c, fmt.Errorf("loading geofences: %w", err)
		}
		c.Geofences = fences

	case telemetry.KindGyro:
		if previous == nil {
			return c, nil
		}
		if g, ok := previous.Payload.(telemetry.Gyro); ok {
			c.PreviousGyro = &g
		}
	}

	return c, nil
}
