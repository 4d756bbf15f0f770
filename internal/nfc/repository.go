package nfc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// maxTagUIDLength bounds a UID; NFC UIDs are at most 10 bytes, hex encoded
// with optional separators.
const maxTagUIDLength = 64

// Tag is an NFC tag and its current binding. DeviceID and PairedAt are nil
// while the tag is unlinked.
type Tag struct {
	ID        string     `json:"id"`
	TagUID    string     `json:"tag_uid"`
	DeviceID  *string    `json:"device_id"`
	PairedAt  *time.Time `json:"paired_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NormalizeUID trims s and checks its length.
func NormalizeUID(s string) (string, error) {
	uid := strings.TrimSpace(s)
	if uid == "" || len(uid) > maxTagUIDLength {
		return "", ErrInvalidTagUID
	}
	return uid, nil
}

// Repository persists tags.
type Repository interface {
	Link(ctx context.Context, tagUID, deviceID string, at time.Time) (*Tag, error)
	Unlink(ctx context.Context, tagUID string, at time.Time) (*Tag, error)
	GetByUID(ctx context.Context, tagUID string) (*Tag, error)
	ListByDevice(ctx context.Context, deviceID string) ([]Tag, error)
	AllowedTags(ctx context.Context, deviceID string) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const tagColumns = "id, tag_uid, device_id, paired_at, created_at, updated_at"

// Link binds tagUID to deviceID, creating the tag on first sight and
// otherwise moving the existing row.
func (r *SQLiteRepository) Link(ctx context.Context, tagUID, deviceID string, at time.Time) (*Tag, error) {
	ts := database.FormatTime(at)

	var tag *Tag
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO nfc_tags (id, tag_uid, device_id, paired_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tag_uid) DO UPDATE SET
				device_id  = excluded.device_id,
				paired_at  = excluded.paired_at,
				updated_at = excluded.updated_at`,
			"nfc-"+uuid.NewString(), tagUID, deviceID, ts, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("linking tag: %w", err)
		}
		tag, err = getTag(ctx, tx, tagUID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// Unlink clears the tag's binding. The row is kept.
func (r *SQLiteRepository) Unlink(ctx context.Context, tagUID string, at time.Time) (*Tag, error) {
	var tag *Tag
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE nfc_tags SET device_id = NULL, paired_at = NULL, updated_at = ? WHERE tag_uid = ?",
			database.FormatTime(at), tagUID,
		)
		if err != nil {
			return fmt.Errorf("unlinking tag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking unlink result: %w", err)
		}
		if n == 0 {
			return ErrTagNotFound
		}
		tag, err = getTag(ctx, tx, tagUID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// GetByUID returns a tag by UID.
func (r *SQLiteRepository) GetByUID(ctx context.Context, tagUID string) (*Tag, error) {
	return getTag(ctx, r.db, tagUID)
}

// ListByDevice returns the tags linked to deviceID, most recently linked
// first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tagColumns+" FROM nfc_tags WHERE device_id = ? ORDER BY paired_at DESC, id",
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// AllowedTags returns the UIDs linked to deviceID.
func (r *SQLiteRepository) AllowedTags(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT tag_uid FROM nfc_tags WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing allowed tags: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scanning tag uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getTag(ctx context.Context, q queryer, tagUID string) (*Tag, error) {
	t, err := scanTag(q.QueryRowContext(ctx, "SELECT "+tagColumns+" FROM nfc_tags WHERE tag_uid = ?", tagUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTagNotFound
	}
	return t, err
}

func scanTag(s scanner) (*Tag, error) {
	var (
		t                    Tag
		deviceID, pairedAt   sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&t.ID, &t.TagUID, &deviceID, &pairedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning tag: %w", err)
	}

	if deviceID.Valid {
		t.DeviceID = &deviceID.String
	}
	var err error
	if t.PairedAt, err = database.ParseNullTime(pairedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
