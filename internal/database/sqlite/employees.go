package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EmployeeRepository provides SQLite-backed employee directory storage
type EmployeeRepository struct {
	pool *Pool
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(pool *Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

const employeeColumns = `id, emp_code, emp_b_id, emp_full_name, emp_phone, emp_email,
	emp_profile_photo, emp_profile_image_local, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (database.Employee, error) {
	var (
		e                                             database.Employee
		bid, phone, email, photo, local, created, upd sql.NullString
	)
	err := row.Scan(&e.ID, &e.EmpCode, &bid, &e.FullName, &phone, &email, &photo, &local, &created, &upd)
	if err != nil {
		return e, err
	}
	e.EmpBID = bid.String
	e.Phone = phone.String
	e.Email = email.String
	e.ProfilePhoto = photo.String
	e.ProfileImageLocal = local.String
	e.CreatedAt = created.String
	e.UpdatedAt = upd.String
	return e, nil
}

// EmployeeExists reports whether an employee with the code is stored
func (r *EmployeeRepository) EmployeeExists(ctx context.Context, empCode string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, "SELECT 1 FROM employees WHERE emp_code = ?", empCode).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check employee %s: %w", empCode, err)
	}
	return true, nil
}

// GetEmployee returns the employee or database.ErrNotFound
func (r *EmployeeRepository) GetEmployee(ctx context.Context, empCode string) (*database.Employee, error) {
	e, err := scanEmployee(r.pool.QueryRow(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE emp_code = ?", empCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get employee %s: %w", empCode, err)
	}
	return &e, nil
}

// ListEmployees returns all employees ordered by name
func (r *EmployeeRepository) ListEmployees(ctx context.Context) ([]database.Employee, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY emp_full_name, emp_code")
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
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

// CountEmployees returns the number of stored employees
func (r *EmployeeRepository) CountEmployees(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM employees").Scan(&n); err != nil {
		return 0, fmt.Errorf("count employees: %w", err)
	}
	return n, nil
}

// InsertEmployee adds a new employee
func (r *EmployeeRepository) InsertEmployee(ctx context.Context, e database.Employee) error {
	now := r.pool.Stamp()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO employees (emp_code, emp_b_id, emp_full_name, emp_phone, emp_email,
			emp_profile_photo, emp_profile_image_local, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EmpCode, nullString(e.EmpBID), e.FullName, nullString(e.Phone), nullString(e.Email),
		nullString(e.ProfilePhoto), nullString(e.ProfileImageLocal), now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert employee %s: %w", e.EmpCode, database.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert employee %s: %w", e.EmpCode, err)
	}
	return nil
}

// UpdateEmployee overwrites the mutable fields of an existing employee
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, e database.Employee) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE employees SET emp_b_id = ?, emp_full_name = ?, emp_phone = ?, emp_email = ?,
			emp_profile_photo = ?, emp_profile_image_local = ?, updated_at = ?
		WHERE emp_code = ?
	`, nullString(e.EmpBID), e.FullName, nullString(e.Phone), nullString(e.Email),
		nullString(e.ProfilePhoto), nullString(e.ProfileImageLocal), r.pool.Stamp(), e.EmpCode)
	if err != nil {
		return fmt.Errorf("update employee %s: %w", e.EmpCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update employee %s: %w", e.EmpCode, database.ErrNotFound)
	}
	return nil
}
