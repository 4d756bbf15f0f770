package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
)

// User is the internal record for an external identity.
type User struct {
	ID          string    `json:"id"`
	ExternalUID string    `json:"external_uid"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRepository persists users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalUID(ctx context.Context, uid string) (*User, error)
	EnsureByExternalUID(ctx context.Context, uid, email string) (*User, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "SELECT id, external_uid, email, created_at, updated_at FROM users"

// GetByID retrieves a user by internal ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, userColumns+" WHERE id = ?", id)
}

// GetByExternalUID retrieves a user by identity-provider subject.
func (r *SQLiteUserRepository) GetByExternalUID(ctx context.Context, uid string) (*User, error) {
	return r.getUser(ctx, userColumns+" WHERE external_uid = ?", uid)
}

// EnsureByExternalUID returns the user for uid, creating it on first sight.
// A changed email is written back.
func (r *SQLiteUserRepository) EnsureByExternalUID(ctx context.Context, uid, email string) (*User, error) {
	now := database.FormatTime(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_uid, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(external_uid) DO UPDATE SET
		   email = COALESCE(excluded.email, users.email),
		   updated_at = CASE WHEN excluded.email IS NOT NULL AND excluded.email IS NOT users.email
		                     THEN excluded.updated_at ELSE users.updated_at END`,
		"usr-"+uuid.NewString(), uid, nullString(email), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}
	return r.GetByExternalUID(ctx, uid)
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	var email sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.ExternalUID, &email, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Email = email.String
	if u.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
