package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// SessionRepository persists the single directory-service session
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// SaveSession replaces any stored session with s
func (r *SessionRepository) SaveSession(ctx context.Context, s database.Session) error {
	if s.Token == "" {
		return errors.New("save session: token is required")
	}

	var expires sql.NullString
	if s.ExpiresAt != nil {
		expires = sql.NullString{String: s.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	now := r.pool.Stamp()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clear previous session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (token, employee_id, name, email, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Token, nullString(s.EmployeeID), nullString(s.Name), nullString(s.Email), expires, now, now); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// LoadSession returns the active session or database.ErrNotFound
func (r *SessionRepository) LoadSession(ctx context.Context) (*database.Session, error) {
	var (
		s                                   database.Session
		empID, name, email, exp, created, u sql.NullString
	)
	err := r.pool.QueryRow(ctx, `
		SELECT token, employee_id, name, email, expires_at, created_at, updated_at
		FROM sessions ORDER BY created_at DESC LIMIT 1
	`).Scan(&s.Token, &empID, &name, &email, &exp, &created, &u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.EmployeeID = empID.String
	s.Name = name.String
	s.Email = email.String
	s.CreatedAt = created.String
	s.UpdatedAt = u.String
	if exp.Valid {
		if t, err := time.Parse(time.RFC3339, exp.String); err == nil {
			s.ExpiresAt = &t
		}
	}
	return &s, nil
}

// ClearSession removes the active session
func (r *SessionRepository) ClearSession(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
