package nfc

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/device"
)

// Audit actions.
const (
	ActionLinked   = "linked_nfc_tag"
	ActionUnlinked = "unlinked_nfc_tag"
)

// DeviceSource looks devices up by id. device.Repository satisfies it.
type DeviceSource interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
}

// Service runs owner-facing tag operations and device-side verification.
type Service struct {
	tags    Repository
	devices DeviceSource
	audit   audit.Recorder
	logger  Logger
	now     func() time.Time
}

// NewService creates a Service. A nil recorder discards audit entries.
func NewService(tags Repository, devices DeviceSource, rec audit.Recorder) *Service {
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Service{
		tags:    tags,
		devices: devices,
		audit:   rec,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Link binds tagUID to a device owned by ownerID. A UID already bound to
// another device is moved.
func (s *Service) Link(ctx context.Context, ownerID, deviceID, tagUID string) (*Tag, error) {
	uid, err := NormalizeUID(tagUID)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, ownerID, deviceID); err != nil {
		return nil, err
	}

	var previous *string
	if existing, err := s.tags.GetByUID(ctx, uid); err == nil {
		previous = existing.DeviceID
	}

	tag, err := s.tags.Link(ctx, uid, deviceID, s.now())
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"device_id": deviceID, "tag_uid": uid}
	if previous != nil && *previous != deviceID {
		meta["previous_device_id"] = *previous
		s.logger.Info("nfc tag reassigned", "tag_id", tag.ID, "from", *previous, "to", deviceID)
	}
	s.record(ownerID, ActionLinked, tag.ID, meta)
	return tag, nil
}

// Unlink clears a tag's binding. Only the owner of the device it is
// currently linked to may do so.
func (s *Service) Unlink(ctx context.Context, ownerID, tagUID string) (*Tag, error) {
	uid, err := NormalizeUID(tagUID)
	if err != nil {
		return nil, err
	}
	current, err := s.tags.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if current.DeviceID == nil {
		return nil, ErrTagNotFound
	}
	previous := *current.DeviceID
	if _, err := s.owned(ctx, ownerID, previous); err != nil {
		return nil, err
	}

	tag, err := s.tags.Unlink(ctx, uid, s.now())
	if err != nil {
		return nil, err
	}
	s.record(ownerID, ActionUnlinked, tag.ID, map[string]any{"device_id": previous, "tag_uid": uid})
	return tag, nil
}

// Verify reports whether tagUID is linked to deviceID.
func (s *Service) Verify(ctx context.Context, deviceID, tagUID string) (bool, error) {
	uid, err := NormalizeUID(tagUID)
	if err != nil {
		return false, err
	}
	tag, err := s.tags.GetByUID(ctx, uid)
	if errors.Is(err, ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.DeviceID != nil && *tag.DeviceID == deviceID, nil
}

// ListByDevice returns the tags of a device owned by ownerID.
func (s *Service) ListByDevice(ctx context.Context, ownerID, deviceID string) ([]Tag, error) {
	if _, err := s.owned(ctx, ownerID, deviceID); err != nil {
		return nil, err
	}
	return s.tags.ListByDevice(ctx, deviceID)
}

func (s *Service) owned(ctx context.Context, ownerID, deviceID string) (*device.Device, error) {
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(ownerID) {
		return nil, device.ErrNotOwner
	}
	return d, nil
}

func (s *Service) record(ownerID, action, tagID string, metadata map[string]any) {
	s.audit.Record(&audit.AuditLog{
		ActorType:  audit.ActorUser,
		ActorID:    ownerID,
		Action:     action,
		TargetType: "nfc_tag",
		TargetID:   tagID,
		Metadata:   metadata,
	})
}
