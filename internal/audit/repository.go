// Package audit records and queries the trail of security-relevant actions:
// pairing transitions, device creation, config changes, tag links and
// geofence edits.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// Actor types.
const (
	ActorUser   = "user"
	ActorDevice = "device"
	ActorSystem = "system"
)

// ErrNotFound is returned when an audit entry does not exist.
var ErrNotFound = errors.New("audit: entry not found")

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	ActorType  string         `json:"actor_type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	ActorID    string // optional
	Action     string // optional
	TargetType string // optional
	TargetID   string // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	GetByID(ctx context.Context, id string) (*AuditLog, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Page size bounds.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var metadataJSON *string
	if log.Metadata != nil {
		b, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling audit metadata: %w", err)
		}
		s := string(b)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_type, actor_id, action, target_type, target_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.ActorType, nullableString(log.ActorID),
		log.Action, log.TargetType, nullableString(log.TargetID),
		metadataJSON, database.FormatTime(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectColumns = "SELECT id, actor_type, actor_id, action, target_type, target_id, metadata, created_at FROM audit_logs"

// GetByID returns one entry.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*AuditLog, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"actor_id", filter.ActorID},
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE built from fixed column names with ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	//nolint:gosec // WHERE built from fixed column names with ? placeholders
	rows, err := r.db.QueryContext(ctx,
		selectColumns+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(s scanner) (*AuditLog, error) {
	var log AuditLog
	var actorID, targetID, metadataJSON sql.NullString
	var createdAt string

	if err := s.Scan(&log.ID, &log.ActorType, &actorID, &log.Action,
		&log.TargetType, &targetID, &metadataJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	log.ActorID = actorID.String
	log.TargetID = targetID.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		var metadata map[string]any
		if json.Unmarshal([]byte(metadataJSON.String), &metadata) == nil {
			log.Metadata = metadata
		}
	}

	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	log.CreatedAt = t
	return &log, nil
}
