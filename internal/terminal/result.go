package terminal

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// Status tags the outcome of one recognition attempt
type Status int

const (
	StatusRecognized Status = iota
	StatusNoImage
	StatusNoProfiles
	StatusNoFace
	StatusUnauthorized
	StatusUnknownEmployee
	StatusSpoofDetected
	StatusDetectionError
	StatusBusy
	StatusInvalidProbe
)

func (s Status) String() string {
	switch s {
	case StatusRecognized:
		return "recognized"
	case StatusNoImage:
		return "no_image"
	case StatusNoProfiles:
		return "no_profiles"
	case StatusNoFace:
		return "no_face"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusUnknownEmployee:
		return "unknown_employee"
	case StatusSpoofDetected:
		return "spoof_detected"
	case StatusDetectionError:
		return "detection_error"
	case StatusBusy:
		return "busy"
	case StatusInvalidProbe:
		return "invalid_probe"
	}
	return "unknown"
}

// MarshalText renders the status as its string form in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for v := Status(0); v <= StatusInvalidProbe; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown recognition status %q", text)
}

// action is the machine-readable tag for statuses that never reach the ledger
func (s Status) action() string {
	switch s {
	case StatusNoImage:
		return "NO_IMAGE"
	case StatusNoProfiles:
		return "NO_PROFILES"
	case StatusNoFace:
		return "NO_FACE"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusUnknownEmployee:
		return "UNKNOWN_EMPLOYEE"
	case StatusSpoofDetected:
		return "SPOOF_DETECTED"
	case StatusDetectionError:
		return "DETECTION_ERROR"
	case StatusBusy:
		return "BUSY"
	case StatusInvalidProbe:
		return "INVALID_PROBE"
	}
	return ""
}

// Recognition is the operator-facing result of one frame
type Recognition struct {
	ID              string             `json:"id"`
	Status          Status             `json:"status"`
	Success         bool               `json:"success"`
	Action          string             `json:"action"`
	Message         string             `json:"message"`
	EmpCode         string             `json:"emp_code,omitempty"`
	EmpName         string             `json:"emp_name,omitempty"`
	Similarity      float64            `json:"similarity"`
	Threshold       float64            `json:"threshold"`
	LivenessChecked bool               `json:"liveness_checked"`
	Attendance      *attendance.Result `json:"attendance,omitempty"`
	At              time.Time          `json:"at"`
}
