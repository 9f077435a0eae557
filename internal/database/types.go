package database

import (
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert violates the one-record-per-employee-per-day constraint.
var ErrDuplicate = errors.New("attendance record already exists for this employee and date")

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("not found")

// AttendanceStatus is the persisted state of a day's attendance record
type AttendanceStatus string

const (
	StatusCheckedIn  AttendanceStatus = "CHECKED_IN"
	StatusCheckedOut AttendanceStatus = "CHECKED_OUT"
)

// Valid reports whether s is one of the persisted statuses.
func (s AttendanceStatus) Valid() bool {
	return s == StatusCheckedIn || s == StatusCheckedOut
}

// CaptureMode records how an attendance event was captured
type CaptureMode string

const (
	ModeFace   CaptureMode = "FACE"
	ModeManual CaptureMode = "MANUAL"
)

// Employee is a directory entry keyed by EmpCode
type Employee struct {
	ID                int64  `json:"id"`
	EmpCode           string `json:"emp_code"`
	EmpBID            string `json:"emp_b_id,omitempty"`
	FullName          string `json:"emp_full_name"`
	Phone             string `json:"emp_phone,omitempty"`
	Email             string `json:"emp_email,omitempty"`
	ProfilePhoto      string `json:"emp_profile_photo,omitempty"`       // remote photo URL
	ProfileImageLocal string `json:"emp_profile_image_local,omitempty"` // reference photo on disk
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// AttendanceRecord is one employee's ledger row for one civil day.
// Checkout fields are empty until the first checkout.
type AttendanceRecord struct {
	ID           int64            `json:"id"`
	EmpBID       string           `json:"emp_b_id,omitempty"`
	EmpCode      string           `json:"emp_code"`
	EmpFullName  string           `json:"emp_full_name"`
	CheckinDate  string           `json:"checkin_date"`
	CheckinTime  string           `json:"checkin_time"`
	CheckoutDate string           `json:"checkout_date,omitempty"`
	CheckoutTime string           `json:"checkout_time,omitempty"`
	Status       AttendanceStatus `json:"status"`
	Mode         CaptureMode      `json:"mode"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// HasCheckedOut reports whether a checkout time has been recorded.
func (r *AttendanceRecord) HasCheckedOut() bool {
	return r.CheckoutTime != ""
}

// CheckoutUpdate carries the fields written by a checkout event
type CheckoutUpdate struct {
	EmpCode      string
	CheckinDate  string
	CheckoutDate string
	CheckoutTime string
	UpdatedAt    string
}

// LogFilter narrows attendance log listings. Empty fields match everything.
type LogFilter struct {
	Date    string
	EmpCode string
	Status  AttendanceStatus
	Limit   int
}

// DaySummary aggregates one day's attendance
type DaySummary struct {
	Date           string             `json:"date"`
	TotalEmployees int                `json:"total_employees"`
	CheckedInOnly  int                `json:"checked_in_only"`
	Completed      int                `json:"completed"`
	Records        []AttendanceRecord `json:"records"`
}

// DuplicateGroup is an (employee, day) pair that holds more than one record
type DuplicateGroup struct {
	EmpCode string `json:"emp_code"`
	Date    string `json:"checkin_date"`
	Count   int    `json:"count"`
}

// Session is the single persisted directory-service login
type Session struct {
	Token      string     `json:"-"`
	EmployeeID string     `json:"employee_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

// Expired reports whether the session has a known expiry in the past.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// ArtifactKind distinguishes full store copies from filtered extracts
type ArtifactKind string

const (
	ArtifactFull    ArtifactKind = "full"
	ArtifactExtract ArtifactKind = "extract"
)

// BackupArtifact is an immutable point-in-time copy written by the backup scheduler
type BackupArtifact struct {
	Kind      ArtifactKind `json:"kind"`
	Label     string       `json:"label"` // full, daily, weekly, monthly
	Path      string       `json:"path"`
	Rows      int          `json:"rows"`
	CreatedAt time.Time    `json:"created_at"`
	CycleID   string       `json:"cycle_id"`
}

// EnrolledFace is one reference embedding held by the identity index
type EnrolledFace struct {
	EmpCode   string
	Source    string // reference image file name
	Embedding []float32
}
