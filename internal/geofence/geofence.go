// Package geofence stores circular fences per device. Fences feed the
// gps detection context; they are never part of telemetry.
package geofence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// Domain errors for the geofence package.
var (
	ErrNotFound = errors.New("geofence: not found")
	ErrInvalid  = errors.New("geofence: invalid")
)

// Geofence is a circle around (Lat, Lng). Radius is in degrees: the breach
// rule compares it with the planar distance on raw coordinates.
type Geofence struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Radius    float64   `json:"radius"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists geofences.
type Repository interface {
	Create(ctx context.Context, g *Geofence) error
	ListByDevice(ctx context.Context, deviceID string) ([]Geofence, error)
	Delete(ctx context.Context, deviceID, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a fence. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, g *Geofence) error {
	if g.Radius <= 0 {
		return fmt.Errorf("%w: radius must be positive", ErrInvalid)
	}
	if g.ID == "" {
		g.ID = "geo-" + uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO geofences (id, device_id, name, lat, lng, radius, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		g.ID, g.DeviceID, g.Name, g.Lat, g.Lng, g.Radius, database.FormatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting geofence: %w", err)
	}
	return nil
}

// ListByDevice returns a device's fences, oldest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Geofence, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, device_id, name, lat, lng, radius, created_at FROM geofences WHERE device_id = ? ORDER BY created_at, id",
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing geofences: %w", err)
	}
	defer rows.Close()

	fences := []Geofence{}
	for rows.Next() {
		var g Geofence
		var createdAt string
		if err := rows.Scan(&g.ID, &g.DeviceID, &g.Name, &g.Lat, &g.Lng, &g.Radius, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning geofence: %w", err)
		}
		if g.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		fences = append(fences, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating geofences: %w", err)
	}
	return fences, nil
}

// Delete removes a fence belonging to deviceID.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM geofences WHERE id = ? AND device_id = ?", id, deviceID)
	if err != nil {
		return fmt.Errorf("deleting geofence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
