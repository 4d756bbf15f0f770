package pairing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/access"
	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/device"
)

// Audit actions.
const (
	ActionPaired           = "paired_device"
	ActionUnpaired         = "unpaired_device"
	ActionCreatedAndPaired = "created_and_paired_device"
	ActionProvisioned      = "provisioned_device"
	ActionUpdated          = "updated_device"
	ActionScanMode         = "enabled_scan_mode"
)

// CredentialStore derives and checks device secrets. *auth.Credentials satisfies it.
type CredentialStore interface {
	HashFor(serial string) (string, error)
	Verify(serial, storedHash string) error
}

// Notifier publishes events to a device's channel. *access.Notifier satisfies it.
type Notifier interface {
	DeviceUpdate(ctx context.Context, channel string, device, config any) error
	EnterScanMode(ctx context.Context, channel string, at time.Time) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Devices     device.Repository
	Credentials CredentialStore
	Access      access.Gateway
	Notifier    Notifier
	Audit       audit.Recorder
}

// Service runs pairing transitions and device authentication.
type Service struct {
	devices  device.Repository
	creds    CredentialStore
	access   access.Gateway
	notifier Notifier
	audit    audit.Recorder
	logger   Logger
	now      func() time.Time
}

// NewService creates a Service. A nil Audit discards entries.
func NewService(deps Deps) *Service {
	rec := deps.Audit
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Service{
		devices:  deps.Devices,
		creds:    deps.Credentials,
		access:   deps.Access,
		notifier: deps.Notifier,
		audit:    rec,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Bootstrap is what a device learns from the handshake.
type Bootstrap struct {
	Channel string              `json:"channel"`
	Config  device.FeatureFlags `json:"config"`
}

// Pair binds the unpaired device with serial to ownerID using its one-time
// code, then grants channel access.
func (s *Service) Pair(ctx context.Context, ownerID, serial, code string) (*device.Device, error) {
	d, err := s.devices.Pair(ctx, serial, code, ownerID, s.now())
	if err != nil {
		return nil, err
	}

	s.grant(ctx, d)
	s.record(audit.ActorUser, ownerID, ActionPaired, d.ID, map[string]any{"serial_number": serial})
	s.logger.Info("device paired", "device_id", d.ID, "owner_id", ownerID)
	return d, nil
}

// Unpair returns a device owned by ownerID to the unpaired state and
// revokes its channel access. Telemetry and findings are kept.
func (s *Service) Unpair(ctx context.Context, ownerID, deviceID string) (*device.Device, error) {
	d, err := s.devices.Unpair(ctx, deviceID, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.access.Revoke(ctx, subject(d)); err != nil {
		s.logger.Error("channel access revoke failed", "device_id", d.ID, "error", err)
	}
	s.record(audit.ActorUser, ownerID, ActionUnpaired, d.ID, nil)
	s.logger.Info("device unpaired", "device_id", d.ID)
	return d, nil
}

// CreateAndPair registers a new device already paired to ownerID, skipping
// the pairing-code path.
func (s *Service) CreateAndPair(ctx context.Context, ownerID, serial, name string) (*device.Device, error) {
	if !device.ValidSerial(serial) {
		return nil, device.ErrInvalidSerial
	}
	hash, err := s.creds.HashFor(serial)
	if err != nil {
		return nil, fmt.Errorf("hashing device secret: %w", err)
	}

	now := s.now().UTC()
	d := &device.Device{
		SerialNumber: serial,
		OwnerID:      &ownerID,
		Name:         name,
		Enabled:      true,
		Paired:       true,
		PairedAt:     &now,
		Channel:      NewChannel(serial, now),
		SecretHash:   hash,
		LastSeenAt:   &now,
	}
	if err := s.devices.Create(ctx, d, device.DefaultFeatureFlags()); err != nil {
		return nil, err
	}

	s.grant(ctx, d)
	s.record(audit.ActorUser, ownerID, ActionCreatedAndPaired, d.ID, map[string]any{
		"name":    name,
		"channel": d.Channel,
	})
	s.logger.Info("device created and paired", "device_id", d.ID, "owner_id", ownerID)
	return d, nil
}

// Provision registers serial as an unpaired device with a fresh pairing
// code, or issues a new code if the device exists and is unpaired. The code
// is returned once and never logged.
func (s *Service) Provision(ctx context.Context, serial, name string) (*device.Device, string, error) {
	if !device.ValidSerial(serial) {
		return nil, "", device.ErrInvalidSerial
	}
	code, err := NewPairingCode()
	if err != nil {
		return nil, "", err
	}

	existing, err := s.devices.GetBySerial(ctx, serial)
	switch {
	case err == nil:
		if err := s.devices.IssuePairingCode(ctx, existing.ID, code); err != nil {
			return nil, "", err
		}
		s.record(audit.ActorSystem, "", ActionProvisioned, existing.ID, map[string]any{"reissued": true})
		return existing, code, nil
	case !errors.Is(err, device.ErrDeviceNotFound):
		return nil, "", err
	}

	hash, err := s.creds.HashFor(serial)
	if err != nil {
		return nil, "", fmt.Errorf("hashing device secret: %w", err)
	}
	d := &device.Device{
		SerialNumber: serial,
		Name:         name,
		Enabled:      true,
		PairingCode:  &code,
		Channel:      NewChannel(serial, s.now()),
		SecretHash:   hash,
	}
	if err := s.devices.Create(ctx, d, device.DefaultFeatureFlags()); err != nil {
		return nil, "", err
	}
	s.record(audit.ActorSystem, "", ActionProvisioned, d.ID, nil)
	return d, code, nil
}

// Bootstrap runs the handshake for serial. Gates, in order: device and
// config exist, device is paired, derived secret matches. It changes no state.
func (s *Service) Bootstrap(ctx context.Context, serial string) (*Bootstrap, error) {
	d, err := s.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	cfg, err := s.devices.GetConfig(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTrust(d); err != nil {
		return nil, err
	}

	s.logger.Debug("device bootstrapped", "device_id", d.ID)
	return &Bootstrap{Channel: d.Channel, Config: cfg.FeatureFlags}, nil
}

// Authenticate resolves a device-originated request to its device, applying
// the same existence, pairing and credential gates as Bootstrap.
func (s *Service) Authenticate(ctx context.Context, serial string) (*device.Device, error) {
	d, err := s.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if err := s.checkTrust(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Heartbeat marks the device online.
func (s *Service) Heartbeat(ctx context.Context, deviceID string) error {
	return s.devices.MarkOnline(ctx, deviceID, s.now())
}

// Owned returns the device if ownerID owns it.
func (s *Service) Owned(ctx context.Context, ownerID, deviceID string) (*device.Device, error) {
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(ownerID) {
		return nil, device.ErrNotOwner
	}
	return d, nil
}

// UpdateConfig applies an owner's partial update. The two table writes are
// atomic; the device_update event and the audit entry that follow are best
// effort and never undo a committed update.
func (s *Service) UpdateConfig(ctx context.Context, ownerID, deviceID string, patch device.ConfigPatch) (*device.Device, *device.Config, error) {
	if err := patch.Validate(); err != nil {
		return nil, nil, err
	}
	before, err := s.Owned(ctx, ownerID, deviceID)
	if err != nil {
		return nil, nil, err
	}
	oldCfg, err := s.devices.GetConfig(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}

	d, cfg, err := s.devices.UpdateConfig(ctx, deviceID, patch)
	if err != nil {
		return nil, nil, err
	}

	if err := s.notifier.DeviceUpdate(ctx, d.Channel, d, cfg.FeatureFlags); err != nil {
		s.logger.Warn("device_update publish failed", "device_id", d.ID, "error", err)
	}
	s.record(audit.ActorUser, ownerID, ActionUpdated, d.ID, map[string]any{
		"old": map[string]any{"device": before, "config": oldCfg.FeatureFlags},
		"new": map[string]any{"device": d, "config": cfg.FeatureFlags},
	})
	return d, cfg, nil
}

// EnterScanMode asks an owned device to scan for an NFC tag.
func (s *Service) EnterScanMode(ctx context.Context, ownerID, deviceID string) (*device.Device, error) {
	d, err := s.Owned(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.EnterScanMode(ctx, d.Channel, s.now()); err != nil {
		return nil, err
	}
	s.record(audit.ActorUser, ownerID, ActionScanMode, d.ID, nil)
	return d, nil
}

func (s *Service) checkTrust(d *device.Device) error {
	if !d.Paired {
		return device.ErrNotPaired
	}
	return s.creds.Verify(d.SerialNumber, d.SecretHash)
}

// grant logs rather than returns a failure: the pairing is committed and
// the caller cannot usefully retry it.
func (s *Service) grant(ctx context.Context, d *device.Device) {
	if err := s.access.Grant(ctx, subject(d)); err != nil {
		s.logger.Error("channel access grant failed", "device_id", d.ID, "error", err)
	}
}

func (s *Service) record(actorType, actorID, action, deviceID string, metadata map[string]any) {
	s.audit.Record(&audit.AuditLog{
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: "device",
		TargetID:   deviceID,
		Metadata:   metadata,
	})
}

func subject(d *device.Device) access.Subject {
	return access.Subject{DeviceID: d.ID, SerialNumber: d.SerialNumber, Channel: d.Channel}
}

// NewChannel builds a channel identifier unique per serial and creation time.
func NewChannel(serial string, at time.Time) string {
	return fmt.Sprintf("device-%s-%d", serial, at.UnixMilli())
}

// pairingAlphabet omits 0/O and 1/I so codes read back unambiguously.
const pairingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const pairingCodeLength = 8

// NewPairingCode returns a random one-time pairing code.
func NewPairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating pairing code: %w", err)
	}
	for i, b := range buf {
		buf[i] = pairingAlphabet[int(b)%len(pairingAlphabet)]
	}
	return string(buf), nil
}
