package device

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// Create inserts a device together with its config row.
	// Returns ErrDeviceExists if the serial number or channel is taken.
	Create(ctx context.Context, d *Device, flags FeatureFlags) error

	GetByID(ctx context.Context, id string) (*Device, error)
	GetBySerial(ctx context.Context, serial string) (*Device, error)
	GetByChannel(ctx context.Context, channel string) (*Device, error)
	GetConfig(ctx context.Context, deviceID string) (*Config, error)

	// ListByOwner returns the devices owned by ownerID, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Device, error)

	// Pair binds an unpaired device to ownerID if code matches its
	// outstanding pairing code, consuming the code.
	Pair(ctx context.Context, serial, code, ownerID string, at time.Time) (*Device, error)

	// Unpair flips a paired device owned by ownerID back to unpaired.
	Unpair(ctx context.Context, deviceID, ownerID string) (*Device, error)

	// IssuePairingCode sets a fresh one-time code on an unpaired device.
	IssuePairingCode(ctx context.Context, deviceID, code string) error

	// UpdateConfig applies patch to the device and config rows atomically.
	UpdateConfig(ctx context.Context, deviceID string, patch ConfigPatch) (*Device, *Config, error)

	// MarkOnline records a heartbeat.
	MarkOnline(ctx context.Context, deviceID string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const deviceColumns = `SELECT id, serial_number, owner_id, device_name, device_color, device_enabled,
	paired, pairing_code, paired_at, channel, secret_hash, is_online, last_seen_at,
	created_at, updated_at
	FROM devices`

const configColumns = `SELECT device_id, relay1_enabled, relay1_override, relay1_alarm_type,
	relay1_interval_sec, relay1_trigger_mode, relay1_delay_sec, relay2_enabled, relay2_override,
	battery_saver_enabled, battery_saver_threshold, gyroscope_enabled, gps_enabled,
	sms_alerts_enabled, updated_at
	FROM device_config`

// Create inserts a new device and its config row in one transaction.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device, flags FeatureFlags) error {
	if d.ID == "" {
		d.ID = "dev-" + uuid.NewString()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO devices (
				id, serial_number, owner_id, device_name, device_color, device_enabled,
				paired, pairing_code, paired_at, channel, secret_hash, is_online, last_seen_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.SerialNumber, d.OwnerID, d.Name, d.Color, boolToInt(d.Enabled),
			boolToInt(d.Paired), d.PairingCode, database.NullTime(d.PairedAt), d.Channel,
			d.SecretHash, boolToInt(d.IsOnline), database.NullTime(d.LastSeenAt),
			database.FormatTime(d.CreatedAt), database.FormatTime(d.UpdatedAt),
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDeviceExists
			}
			return fmt.Errorf("inserting device: %w", err)
		}

		return writeConfig(ctx, tx, d.ID, flags, now, true)
	})
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return getDevice(ctx, r.db, deviceColumns+" WHERE id = ?", id)
}

// GetBySerial retrieves a device by serial number.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	return getDevice(ctx, r.db, deviceColumns+" WHERE serial_number = ?", serial)
}

// GetByChannel retrieves a device by channel identifier.
func (r *SQLiteRepository) GetByChannel(ctx context.Context, channel string) (*Device, error) {
	return getDevice(ctx, r.db, deviceColumns+" WHERE channel = ?", channel)
}

// GetConfig retrieves the config row for a device.
func (r *SQLiteRepository) GetConfig(ctx context.Context, deviceID string) (*Config, error) {
	return getConfig(ctx, r.db, deviceID)
}

// ListByOwner returns the devices owned by ownerID.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, deviceColumns+" WHERE owner_id = ? ORDER BY created_at, id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Pair checks, in order: the serial exists, the device is unpaired, a code
// is outstanding, and the code matches. On success the code is cleared so it
// cannot be replayed.
func (r *SQLiteRepository) Pair(ctx context.Context, serial, code, ownerID string, at time.Time) (*Device, error) {
	var paired *Device
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := getDevice(ctx, tx, deviceColumns+" WHERE serial_number = ?", serial)
		if err != nil {
			return err
		}
		switch {
		case d.Paired:
			return ErrAlreadyPaired
		case d.PairingCode == nil:
			return ErrPairingCodeConsumed
		case subtle.ConstantTimeCompare([]byte(*d.PairingCode), []byte(code)) != 1:
			return ErrInvalidPairingCode
		}

		now := database.FormatTime(at)
		res, err := tx.ExecContext(ctx, `
			UPDATE devices
			SET owner_id = ?, paired = 1, paired_at = ?, pairing_code = NULL, updated_at = ?
			WHERE id = ? AND paired = 0 AND pairing_code IS NOT NULL`,
			ownerID, now, now, d.ID,
		)
		if err != nil {
			return fmt.Errorf("pairing device: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 { //nolint:errcheck // sqlite3 always reports rows affected
			return ErrAlreadyPaired
		}

		paired, err = getDevice(ctx, tx, deviceColumns+" WHERE id = ?", d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paired, nil
}

// Unpair flips paired to false. The owner reference and history are kept.
func (r *SQLiteRepository) Unpair(ctx context.Context, deviceID, ownerID string) (*Device, error) {
	var unpaired *Device
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := getDevice(ctx, tx, deviceColumns+" WHERE id = ?", deviceID)
		if err != nil {
			return err
		}
		if !d.OwnedBy(ownerID) {
			return ErrNotOwner
		}
		if !d.Paired {
			return ErrNotPaired
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET paired = 0, is_online = 0, updated_at = ? WHERE id = ?",
			database.FormatTime(time.Now()), deviceID,
		); err != nil {
			return fmt.Errorf("unpairing device: %w", err)
		}

		unpaired, err = getDevice(ctx, tx, deviceColumns+" WHERE id = ?", deviceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unpaired, nil
}

// IssuePairingCode stores code on an unpaired device, replacing any
// outstanding code.
func (r *SQLiteRepository) IssuePairingCode(ctx context.Context, deviceID, code string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := getDevice(ctx, tx, deviceColumns+" WHERE id = ?", deviceID)
		if err != nil {
			return err
		}
		if d.Paired {
			return ErrAlreadyPaired
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET pairing_code = ?, paired_at = NULL, updated_at = ? WHERE id = ?",
			code, database.FormatTime(time.Now()), deviceID,
		); err != nil {
			return fmt.Errorf("issuing pairing code: %w", err)
		}
		return nil
	})
}

// UpdateConfig writes both tables in one transaction.
func (r *SQLiteRepository) UpdateConfig(ctx context.Context, deviceID string, patch ConfigPatch) (*Device, *Config, error) {
	var (
		dev *Device
		cfg *Config
	)
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if dev, err = getDevice(ctx, tx, deviceColumns+" WHERE id = ?", deviceID); err != nil {
			return err
		}
		if cfg, err = getConfig(ctx, tx, deviceID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if patch.touchesDevice() {
			patch.applyDevice(dev)
			dev.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				"UPDATE devices SET device_name = ?, device_color = ?, device_enabled = ?, updated_at = ? WHERE id = ?",
				dev.Name, dev.Color, boolToInt(dev.Enabled), database.FormatTime(now), deviceID,
			); err != nil {
				return fmt.Errorf("updating device: %w", err)
			}
		}
		if patch.touchesConfig() {
			patch.applyFlags(&cfg.FeatureFlags)
			cfg.UpdatedAt = now
			if err := writeConfig(ctx, tx, deviceID, cfg.FeatureFlags, now, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return dev, cfg, nil
}

// MarkOnline records last_seen_at and flags the device online.
func (r *SQLiteRepository) MarkOnline(ctx context.Context, deviceID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET is_online = 1, last_seen_at = ? WHERE id = ?",
		database.FormatTime(at), deviceID,
	)
	if err != nil {
		return fmt.Errorf("marking device online: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrDeviceNotFound
	}
	return nil
}

func writeConfig(ctx context.Context, q queryer, deviceID string, f FeatureFlags, at time.Time, insert bool) error {
	args := []any{
		boolToInt(f.Relay1Enabled), boolToInt(f.Relay1Override), f.Relay1AlarmType,
		f.Relay1IntervalSec, f.Relay1TriggerMode, f.Relay1DelaySec,
		boolToInt(f.Relay2Enabled), boolToInt(f.Relay2Override),
		boolToInt(f.BatterySaverEnabled), f.BatterySaverThreshold,
		boolToInt(f.GyroscopeEnabled), boolToInt(f.GPSEnabled), boolToInt(f.SMSAlertsEnabled),
		database.FormatTime(at), deviceID,
	}

	query := `
		UPDATE device_config SET
			relay1_enabled = ?, relay1_override = ?, relay1_alarm_type = ?,
			relay1_interval_sec = ?, relay1_trigger_mode = ?, relay1_delay_sec = ?,
			relay2_enabled = ?, relay2_override = ?,
			battery_saver_enabled = ?, battery_saver_threshold = ?,
			gyroscope_enabled = ?, gps_enabled = ?, sms_alerts_enabled = ?,
			updated_at = ?
		WHERE device_id = ?`
	if insert {
		query = `
			INSERT INTO device_config (
				relay1_enabled, relay1_override, relay1_alarm_type,
				relay1_interval_sec, relay1_trigger_mode, relay1_delay_sec,
				relay2_enabled, relay2_override,
				battery_saver_enabled, battery_saver_threshold,
				gyroscope_enabled, gps_enabled, sms_alerts_enabled,
				updated_at, device_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing device config: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func getDevice(ctx context.Context, q queryer, query string, arg string) (*Device, error) {
	d, err := scanDevice(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func scanDevice(s scanner) (*Device, error) {
	var (
		d                       Device
		ownerID, pairingCode    sql.NullString
		pairedAt, lastSeenAt    sql.NullString
		enabled, paired, online int
		createdAt, updatedAt    string
	)
	err := s.Scan(&d.ID, &d.SerialNumber, &ownerID, &d.Name, &d.Color, &enabled,
		&paired, &pairingCode, &pairedAt, &d.Channel, &d.SecretHash, &online, &lastSeenAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Enabled = enabled != 0
	d.Paired = paired != 0
	d.IsOnline = online != 0
	if ownerID.Valid {
		d.OwnerID = &ownerID.String
	}
	if pairingCode.Valid {
		d.PairingCode = &pairingCode.String
	}
	if d.PairedAt, err = database.ParseNullTime(pairedAt); err != nil {
		return nil, err
	}
	if d.LastSeenAt, err = database.ParseNullTime(lastSeenAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func getConfig(ctx context.Context, q queryer, deviceID string) (*Config, error) {
	var (
		c                                            Config
		r1Enabled, r1Override, r2Enabled, r2Override int
		saver, gyro, gps, sms                        int
		updatedAt                                    string
	)
	err := q.QueryRowContext(ctx, configColumns+" WHERE device_id = ?", deviceID).Scan(
		&c.DeviceID, &r1Enabled, &r1Override, &c.Relay1AlarmType,
		&c.Relay1IntervalSec, &c.Relay1TriggerMode, &c.Relay1DelaySec, &r2Enabled, &r2Override,
		&saver, &c.BatterySaverThreshold, &gyro, &gps, &sms, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device config: %w", err)
	}

	c.Relay1Enabled = r1Enabled != 0
	c.Relay1Override = r1Override != 0
	c.Relay2Enabled = r2Enabled != 0
	c.Relay2Override = r2Override != 0
	c.BatterySaverEnabled = saver != 0
	c.GyroscopeEnabled = gyro != 0
	c.GPSEnabled = gps != 0
	c.SMSAlertsEnabled = sms != 0
	if c.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
