package postgres

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Mirror writes terminal data into the off-site PostgreSQL mirror.
// Every write is an upsert so re-sending an artifact is harmless.
type Mirror struct {
	pool *Pool
}

// NewMirror creates a mirror writer over pool
func NewMirror(pool *Pool) *Mirror {
	return &Mirror{pool: pool}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MirrorAttendance upserts ledger rows. An existing row is only overwritten
// when the incoming copy was updated later, so a stale artifact never rolls
// back a checkout. Returns the number of rows inserted or changed.
func (m *Mirror) MirrorAttendance(ctx context.Context, terminal string, rows []database.AttendanceRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := m.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_logs (terminal, emp_b_id, emp_code, emp_full_name, checkin_date, checkin_time,
			checkout_date, checkout_time, status, mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (emp_code, checkin_date) DO UPDATE SET
			checkout_date = EXCLUDED.checkout_date,
			checkout_time = EXCLUDED.checkout_time,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			mirrored_at = NOW()
		WHERE attendance_logs.updated_at < EXCLUDED.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare attendance upsert: %w", err)
	}
	defer stmt.Close()

	changed := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, terminal, nullable(r.EmpBID), r.EmpCode, r.EmpFullName,
			r.CheckinDate, r.CheckinTime, nullable(r.CheckoutDate), nullable(r.CheckoutTime),
			string(r.Status), string(r.Mode), r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("upsert attendance %s/%s: %w", r.EmpCode, r.CheckinDate, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			changed += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attendance mirror: %w", err)
	}
	return changed, nil
}

// MirrorEmployees upserts directory entries.
func (m *Mirror) MirrorEmployees(ctx context.Context, employees []database.Employee) (int, error) {
	if len(employees) == 0 {
		return 0, nil
	}

	tx, err := m.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO employees (emp_code, emp_b_id, emp_full_name, emp_phone, emp_email, emp_profile_photo, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (emp_code) DO UPDATE SET
			emp_b_id = EXCLUDED.emp_b_id,
			emp_full_name = EXCLUDED.emp_full_name,
			emp_phone = EXCLUDED.emp_phone,
			emp_email = EXCLUDED.emp_email,
			emp_profile_photo = EXCLUDED.emp_profile_photo,
			updated_at = EXCLUDED.updated_at,
			mirrored_at = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare employee upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range employees {
		if _, err := stmt.ExecContext(ctx, e.EmpCode, nullable(e.EmpBID), e.FullName, nullable(e.Phone),
			nullable(e.Email), nullable(e.ProfilePhoto), nullable(e.UpdatedAt)); err != nil {
			return 0, fmt.Errorf("upsert employee %s: %w", e.EmpCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit employee mirror: %w", err)
	}
	return len(employees), nil
}

// MirrorFaces replaces the terminal's enrolled face embeddings. Embeddings
// whose dimension does not match the vector column are skipped.
func (m *Mirror) MirrorFaces(ctx context.Context, terminal string, faces []database.EnrolledFace) (int, error) {
	tx, err := m.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM employee_faces WHERE terminal = $1", terminal); err != nil {
		return 0, fmt.Errorf("clear faces for %s: %w", terminal, err)
	}

	written := 0
	for _, f := range faces {
		if len(f.Embedding) != database.FaceEmbeddingDim {
			log.Printf("mirror: skipping face %s/%s with dimension %d", f.EmpCode, f.Source, len(f.Embedding))
			continue
		}
		vec := pgvector.NewVector(f.Embedding)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO employee_faces (terminal, emp_code, source, embedding) VALUES ($1, $2, $3, $4)",
			terminal, f.EmpCode, f.Source, vec); err != nil {
			return 0, fmt.Errorf("insert face %s/%s: %w", f.EmpCode, f.Source, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit face mirror: %w", err)
	}
	return written, nil
}

// RecordUpload notes that an artifact reached the mirror.
func (m *Mirror) RecordUpload(ctx context.Context, terminal string, a database.BackupArtifact) error {
	_, err := m.pool.db.ExecContext(ctx, `
		INSERT INTO backup_uploads (terminal, cycle_id, kind, label, file_name, row_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (terminal, file_name) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			uploaded_at = NOW()
	`, terminal, a.CycleID, string(a.Kind), a.Label, filepath.Base(a.Path), a.Rows)
	if err != nil {
		return fmt.Errorf("record upload %s: %w", a.Path, err)
	}
	return nil
}

// NearestFace returns the mirrored employee whose embedding is closest to
// the probe by cosine distance, or database.ErrNotFound.
func (m *Mirror) NearestFace(ctx context.Context, probe []float32) (string, float64, error) {
	var (
		code string
		dist float64
	)
	err := m.pool.QueryRow(ctx, `
		SELECT emp_code, embedding <=> $1
		FROM employee_faces
		ORDER BY embedding <=> $1
		LIMIT 1
	`, pgvector.NewVector(probe)).Scan(&code, &dist)
	if err != nil {
		if isNoRows(err) {
			return "", 0, database.ErrNotFound
		}
		return "", 0, fmt.Errorf("nearest face: %w", err)
	}
	return code, dist, nil
}

// AttendanceCount returns the number of mirrored ledger rows for a day.
func (m *Mirror) AttendanceCount(ctx context.Context, day string) (int, error) {
	var n int
	if err := m.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM attendance_logs WHERE checkin_date = $1", day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mirrored attendance: %w", err)
	}
	return n, nil
}
