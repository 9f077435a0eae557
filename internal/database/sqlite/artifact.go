package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// WriteAttendanceArtifact writes rows into a standalone SQLite file at path.
// The file gets the ledger schema including the UNIQUE(emp_code, checkin_date)
// constraint and rows are inserted with INSERT OR IGNORE, so writing the same
// rows to the same file again adds nothing. Returns the number of new rows.
func WriteAttendanceArtifact(ctx context.Context, path string, rows []database.AttendanceRecord) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create artifact directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path, 5000, false))
	if err != nil {
		return 0, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, attendanceSchema); err != nil {
		return 0, fmt.Errorf("create artifact schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin artifact transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO attendance_logs (emp_b_id, emp_code, emp_full_name, checkin_date,
			checkin_time, checkout_date, checkout_time, status, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare artifact insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, nullString(r.EmpBID), r.EmpCode, r.EmpFullName, r.CheckinDate,
			r.CheckinTime, nullString(r.CheckoutDate), nullString(r.CheckoutTime), string(r.Status),
			string(r.Mode), r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert artifact row %s/%s: %w", r.EmpCode, r.CheckinDate, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit artifact: %w", err)
	}
	return inserted, nil
}

// ReadAttendanceArtifact returns every ledger row stored in an artifact or
// full snapshot file.
func ReadAttendanceArtifact(ctx context.Context, path string) ([]database.AttendanceRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", dsn(path, 5000, true))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT "+attendanceColumns+" FROM attendance_logs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return collectAttendance(rows)
}

// ReadEmployeesArtifact returns the employee directory stored in a full
// snapshot file.
func ReadEmployeesArtifact(ctx context.Context, path string) ([]database.Employee, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", dsn(path, 5000, true))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY emp_full_name, emp_code")
	if err != nil {
		return nil, fmt.Errorf("read employees from %s: %w", path, err)
	}
	defer rows.Close()

	var out []database.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return out, nil
}
