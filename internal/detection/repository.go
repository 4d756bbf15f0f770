package detection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// maxList caps ListByDevice results.
const maxList = 100

// Repository persists findings.
type Repository interface {
	// CreateBatch stores findings atomically, in order.
	CreateBatch(ctx context.Context, findings []Finding) error
	// ListByDevice returns a device's findings, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Finding, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateBatch implements Repository.
func (r *SQLiteRepository) CreateBatch(ctx context.Context, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO detections (id, device_id, type, severity, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		)
		if err != nil {
			return fmt.Errorf("preparing finding insert: %w", err)
		}
		defer stmt.Close()

		for i := range findings {
			f := &findings[i]
			if f.Severity < SeverityMin || f.Severity > SeverityMax {
				return fmt.Errorf("%w: severity %d", ErrInvalidFinding, f.Severity)
			}
			meta := f.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			raw, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("encoding finding metadata: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				f.ID, f.DeviceID, f.Type, f.Severity, string(raw), database.FormatTime(f.CreatedAt),
			); err != nil {
				return fmt.Errorf("inserting finding: %w", err)
			}
		}
		return nil
	})
}

// ListByDevice implements Repository. limit is capped at 100.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Finding, error) {
	if limit <= 0 || limit > maxList {
		limit = maxList
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, type, severity, metadata, created_at
		FROM detections
		WHERE device_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var (
			f         Finding
			meta      string
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.DeviceID, &f.Type, &f.Severity, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &f.Metadata); err != nil {
			return nil, fmt.Errorf("decoding finding metadata: %w", err)
		}
		if f.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating findings: %w", err)
	}
	return findings, nil
}
