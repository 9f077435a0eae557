package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides SQLite-backed attendance ledger storage.
// The UNIQUE(emp_code, checkin_date) constraint is the only concurrency guard.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, emp_b_id, emp_code, emp_full_name, checkin_date, checkin_time,
	checkout_date, checkout_time, status, mode, created_at, updated_at`

func scanAttendance(row rowScanner) (database.AttendanceRecord, error) {
	var (
		r                                         database.AttendanceRecord
		bid, outDate, outTime, mode, created, upd sql.NullString
		status                                    string
	)
	err := row.Scan(&r.ID, &bid, &r.EmpCode, &r.EmpFullName, &r.CheckinDate, &r.CheckinTime,
		&outDate, &outTime, &status, &mode, &created, &upd)
	if err != nil {
		return r, err
	}
	r.EmpBID = bid.String
	r.CheckoutDate = outDate.String
	r.CheckoutTime = outTime.String
	r.Status = database.AttendanceStatus(status)
	r.Mode = database.CaptureMode(mode.String)
	if r.Mode == "" {
		r.Mode = database.ModeFace
	}
	r.CreatedAt = created.String
	r.UpdatedAt = upd.String
	return r, nil
}

func collectAttendance(rows *sql.Rows) ([]database.AttendanceRecord, error) {
	defer rows.Close()

	var out []database.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

// GetAttendance returns the record for (empCode, day) or database.ErrNotFound
func (r *AttendanceRepository) GetAttendance(ctx context.Context, empCode, day string) (*database.AttendanceRecord, error) {
	rec, err := scanAttendance(r.pool.QueryRow(ctx,
		"SELECT "+attendanceColumns+" FROM attendance_logs WHERE emp_code = ? AND checkin_date = ?",
		empCode, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance %s/%s: %w", empCode, day, err)
	}
	return &rec, nil
}

// ListAttendance returns records matching the filter, newest first
func (r *AttendanceRepository) ListAttendance(ctx context.Context, f database.LogFilter) ([]database.AttendanceRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != "" {
		where = append(where, "checkin_date = ?")
		args = append(args, f.Date)
	}
	if f.EmpCode != "" {
		where = append(where, "emp_code = ?")
		args = append(args, f.EmpCode)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT " + attendanceColumns + " FROM attendance_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY checkin_date DESC, checkin_time DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return collectAttendance(rows)
}

// ListAttendanceCreatedSince returns records created at or after since, oldest first
func (r *AttendanceRepository) ListAttendanceCreatedSince(ctx context.Context, since string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+attendanceColumns+" FROM attendance_logs WHERE created_at >= ? ORDER BY id", since)
	if err != nil {
		return nil, fmt.Errorf("list attendance since %s: %w", since, err)
	}
	return collectAttendance(rows)
}

// FindDuplicates groups (employee, day) pairs holding more than one record
func (r *AttendanceRepository) FindDuplicates(ctx context.Context) ([]database.DuplicateGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emp_code, checkin_date, COUNT(*)
		FROM attendance_logs
		GROUP BY emp_code, checkin_date
		HAVING COUNT(*) > 1
		ORDER BY checkin_date, emp_code
	`)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	defer rows.Close()

	var out []database.DuplicateGroup
	for rows.Next() {
		var g database.DuplicateGroup
		if err := rows.Scan(&g.EmpCode, &g.Date, &g.Count); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate groups: %w", err)
	}
	return out, nil
}

// InsertCheckIn creates the day's record in CHECKED_IN state.
// Returns database.ErrDuplicate when the (emp_code, checkin_date) pair exists.
func (r *AttendanceRepository) InsertCheckIn(ctx context.Context, rec database.AttendanceRecord) (int64, error) {
	mode := rec.Mode
	if mode == "" {
		mode = database.ModeFace
	}
	created, updated := rec.CreatedAt, rec.UpdatedAt
	if created == "" {
		created = r.pool.Stamp()
	}
	if updated == "" {
		updated = created
	}

	res, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_logs (emp_b_id, emp_code, emp_full_name, checkin_date, checkin_time,
			status, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(rec.EmpBID), rec.EmpCode, rec.EmpFullName, rec.CheckinDate, rec.CheckinTime,
		string(database.StatusCheckedIn), string(mode), created, updated)
	if isUniqueViolation(err) {
		return 0, database.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert check-in %s/%s: %w", rec.EmpCode, rec.CheckinDate, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	return id, nil
}

// UpdateCheckout writes the checkout fields and moves the record to CHECKED_OUT.
// Zero rows affected means there was no record for the day.
func (r *AttendanceRepository) UpdateCheckout(ctx context.Context, u database.CheckoutUpdate) (int64, error) {
	updated := u.UpdatedAt
	if updated == "" {
		updated = r.pool.Stamp()
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE attendance_logs
		SET checkout_date = ?, checkout_time = ?, status = ?, updated_at = ?
		WHERE emp_code = ? AND checkin_date = ?
	`, u.CheckoutDate, u.CheckoutTime, string(database.StatusCheckedOut), updated, u.EmpCode, u.CheckinDate)
	if err != nil {
		return 0, fmt.Errorf("update checkout %s/%s: %w", u.EmpCode, u.CheckinDate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
