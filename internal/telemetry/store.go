package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// maxList caps List results.
const maxList = 100

// Store reads and appends readings.
type Store interface {
	Append(ctx context.Context, deviceID string, p Payload, at time.Time) (*Reading, error)
	Latest(ctx context.Context, deviceID string, kind Kind) (*Reading, error)
	SecondLatest(ctx context.Context, deviceID string, kind Kind) (*Reading, error)
	List(ctx context.Context, deviceID string, kind Kind, limit int) ([]Reading, error)
}

// SQLiteStore implements Store over the four history tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// table maps each kind to its history table and payload columns.
type table struct {
	name    string
	columns string
}

var tables = map[Kind]table{
	KindGPS:     {"gps_history", "lat, lng, accuracy"},
	KindGyro:    {"gyro_history", "x, y, z"},
	KindBattery: {"battery_history", "level, charging"},
	KindRFID:    {"rfid_history", "tag_uid"},
}

func tableFor(kind Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return t, nil
}

// Append inserts a reading and returns it with its row id.
func (s *SQLiteStore) Append(ctx context.Context, deviceID string, p Payload, at time.Time) (*Reading, error) {
	if p == nil {
		return nil, ErrInvalidReading
	}
	t, err := tableFor(p.Kind())
	if err != nil {
		return nil, err
	}

	var values []any
	switch v := p.(type) {
	case GPS:
		values = []any{v.Lat, v.Lng, v.Accuracy}
	case Gyro:
		values = []any{v.X, v.Y, v.Z}
	case Battery:
		charging := 0
		if v.Charging {
			charging = 1
		}
		values = []any{v.Level, charging}
	case RFID:
		values = []any{v.TagUID}
	}

	placeholders := "?, ?"
	for range values {
		placeholders += ", ?"
	}
	args := append([]any{deviceID, database.FormatTime(at)}, values...)

	//nolint:gosec // table and column names come from the fixed tables map
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (device_id, recorded_at, %s) VALUES (%s)", t.name, t.columns, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("appending %s reading: %w", p.Kind(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}

	return &Reading{ID: id, DeviceID: deviceID, RecordedAt: at.UTC(), Payload: p}, nil
}

// Latest returns the newest reading of kind.
func (s *SQLiteStore) Latest(ctx context.Context, deviceID string, kind Kind) (*Reading, error) {
	return s.nth(ctx, deviceID, kind, 0)
}

// SecondLatest returns the reading just before the newest one.
func (s *SQLiteStore) SecondLatest(ctx context.Context, deviceID string, kind Kind) (*Reading, error) {
	return s.nth(ctx, deviceID, kind, 1)
}

func (s *SQLiteStore) nth(ctx context.Context, deviceID string, kind Kind, offset int) (*Reading, error) {
	readings, err := s.query(ctx, deviceID, kind, 1, offset)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNoReading
	}
	return &readings[0], nil
}

// List returns up to limit readings, newest first. limit is capped at 100.
func (s *SQLiteStore) List(ctx context.Context, deviceID string, kind Kind, limit int) ([]Reading, error) {
	if limit <= 0 || limit > maxList {
		limit = maxList
	}
	return s.query(ctx, deviceID, kind, limit, 0)
}

func (s *SQLiteStore) query(ctx context.Context, deviceID string, kind Kind, limit, offset int) ([]Reading, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // table and column names come from the fixed tables map
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, device_id, recorded_at, %s FROM %s
			WHERE device_id = ?
			ORDER BY recorded_at DESC, id DESC
			LIMIT ? OFFSET ?`, t.columns, t.name),
		deviceID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s readings: %w", kind, err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		r, err := scanReading(rows, kind)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s readings: %w", kind, err)
	}
	return readings, nil
}

func scanReading(rows *sql.Rows, kind Kind) (*Reading, error) {
	var (
		r          Reading
		recordedAt string
		err        error
	)
	head := []any{&r.ID, &r.DeviceID, &recordedAt}

	switch kind {
	case KindGPS:
		var g GPS
		var accuracy sql.NullFloat64
		err = rows.Scan(append(head, &g.Lat, &g.Lng, &accuracy)...)
		if accuracy.Valid {
			g.Accuracy = &accuracy.Float64
		}
		r.Payload = g
	case KindGyro:
		var g Gyro
		err = rows.Scan(append(head, &g.X, &g.Y, &g.Z)...)
		r.Payload = g
	case KindBattery:
		var b Battery
		var charging int
		err = rows.Scan(append(head, &b.Level, &charging)...)
		b.Charging = charging != 0
		r.Payload = b
	case KindRFID:
		var t RFID
		err = rows.Scan(append(head, &t.TagUID)...)
		r.Payload = t
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s reading: %w", kind, err)
	}

	if r.RecordedAt, err = database.ParseTime(recordedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// IsNoReading reports whether err means the position was empty.
func IsNoReading(err error) bool {
	return errors.Is(err, ErrNoReading)
}
