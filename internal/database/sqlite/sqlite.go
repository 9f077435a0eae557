// Package sqlite implements the terminal's primary store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Pool manages the SQLite connection pool.
type Pool struct {
	db   *sql.DB
	path string
	loc  *time.Location
	now  func() time.Time
}

// dsn builds a modernc.org/sqlite data source name with per-connection pragmas.
func dsn(path string, busyTimeoutMs int, readOnly bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs))
	if readOnly {
		q.Set("mode", "ro")
	} else {
		q.Add("_pragma", "journal_mode(DELETE)")
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}

// NewPool opens the SQLite file, creating its directory when needed.
func NewPool(cfg *config.DatabaseConfig, loc *time.Location) (*Pool, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if loc == nil {
		loc = time.Local
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	db, err := sql.Open("sqlite", dsn(cfg.Path, busy, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool.
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db, path: cfg.Path, loc: loc, now: time.Now}, nil
}

// Initialize opens the store and applies pending migrations.
func Initialize(cfg *config.DatabaseConfig, loc *time.Location) (*Pool, error) {
	pool, err := NewPool(cfg, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite pool: %w", err)
	}

	if err := pool.Migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Path returns the database file path.
func (p *Pool) Path() string {
	return p.path
}

// SetClock replaces the time source used for created_at/updated_at stamps.
func (p *Pool) SetClock(now func() time.Time) {
	p.now = now
}

// Stamp returns the current civil timestamp in the store's location.
func (p *Pool) Stamp() string {
	return p.now().In(p.loc).Format(database.TimestampLayout)
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Snapshot writes a transactionally consistent copy of the whole store to
// dest using VACUUM INTO. The destination must not exist yet.
func (p *Pool) Snapshot(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot destination %s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		os.Remove(dest)
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Report summarizes the store for the verify command.
type Report struct {
	Path          string   `json:"path"`
	SizeBytes     int64    `json:"size_bytes"`
	SQLiteVersion string   `json:"sqlite_version"`
	Integrity     string   `json:"integrity"`
	Migrations    []string `json:"migrations"`
	Employees     int      `json:"employees"`
	Attendance    int      `json:"attendance_records"`
}

// Verify runs SQLite's integrity check and gathers basic counts.
func (p *Pool) Verify(ctx context.Context) (*Report, error) {
	r := &Report{Path: p.path}
	if fi, err := os.Stat(p.path); err == nil {
		r.SizeBytes = fi.Size()
	}
	if err := p.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&r.SQLiteVersion); err != nil {
		return nil, fmt.Errorf("query sqlite version: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&r.Integrity); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees").Scan(&r.Employees); err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance_logs").Scan(&r.Attendance); err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	migrations, err := p.MigrationsApplied(ctx)
	if err != nil {
		return nil, err
	}
	r.Migrations = migrations
	return r, nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
