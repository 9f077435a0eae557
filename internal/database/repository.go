package database

import (
	"context"
)

// EmployeeReader provides read-only access to the employee directory
type EmployeeReader interface {
	// EmployeeExists reports whether an employee with the code is stored
	EmployeeExists(ctx context.Context, empCode string) (bool, error)
	// GetEmployee returns the employee or ErrNotFound
	GetEmployee(ctx context.Context, empCode string) (*Employee, error)
	// ListEmployees returns all employees ordered by name
	ListEmployees(ctx context.Context) ([]Employee, error)
	// CountEmployees returns the number of stored employees
	CountEmployees(ctx context.Context) (int, error)
}

// EmployeeWriter provides the directory sync surface
type EmployeeWriter interface {
	EmployeeReader

	// InsertEmployee adds a new employee; the code must not exist yet
	InsertEmployee(ctx context.Context, e Employee) error
	// UpdateEmployee overwrites the mutable fields of an existing employee
	UpdateEmployee(ctx context.Context, e Employee) error
}

// AttendanceReader provides read-only projections over the ledger
type AttendanceReader interface {
	// GetAttendance returns the record for (empCode, day) or ErrNotFound
	GetAttendance(ctx context.Context, empCode, day string) (*AttendanceRecord, error)
	// ListAttendance returns records matching the filter, newest first
	ListAttendance(ctx context.Context, f LogFilter) ([]AttendanceRecord, error)
	// ListAttendanceCreatedSince returns records whose created_at is at or after the timestamp
	ListAttendanceCreatedSince(ctx context.Context, since string) ([]AttendanceRecord, error)
	// FindDuplicates groups (employee, day) pairs holding more than one record
	FindDuplicates(ctx context.Context) ([]DuplicateGroup, error)
}

// AttendanceWriter adds the two ledger mutations
type AttendanceWriter interface {
	AttendanceReader

	// InsertCheckIn creates the day's record. Returns ErrDuplicate when one exists.
	InsertCheckIn(ctx context.Context, rec AttendanceRecord) (int64, error)
	// UpdateCheckout writes checkout fields and returns the number of rows changed
	UpdateCheckout(ctx context.Context, u CheckoutUpdate) (int64, error)
}

// SessionStore persists the single active directory-service session
type SessionStore interface {
	// SaveSession replaces any existing session
	SaveSession(ctx context.Context, s Session) error
	// LoadSession returns the active session or ErrNotFound
	LoadSession(ctx context.Context) (*Session, error)
	// ClearSession removes the active session
	ClearSession(ctx context.Context) error
}
