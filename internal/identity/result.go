package identity

import "fmt"

// MatchStatus tags the outcome of a match attempt
type MatchStatus int

const (
	// MatchAccepted means the nearest reference is above the threshold
	MatchAccepted MatchStatus = iota
	// MatchUnauthorized means a face was found but nobody is close enough
	MatchUnauthorized
	// MatchNoProfiles means the index is in the empty state
	MatchNoProfiles
	// MatchNoFace means the detector found no face in the frame
	MatchNoFace
	// MatchNoImage means the frame was empty or could not be decoded
	MatchNoImage
	// MatchDetectionError means the detector failed
	MatchDetectionError
	// MatchInvalidProbe means the probe embedding was empty, zero or of the wrong dimension
	MatchInvalidProbe
)

func (s MatchStatus) String() string {
	switch s {
	case MatchAccepted:
		return "accepted"
	case MatchUnauthorized:
		return "unauthorized"
	case MatchNoProfiles:
		return "no_profiles"
	case MatchNoFace:
		return "no_face"
	case MatchNoImage:
		return "no_image"
	case MatchDetectionError:
		return "detection_error"
	case MatchInvalidProbe:
		return "invalid_probe"
	}
	return "unknown"
}

// MarshalText renders the status as its string form in JSON.
func (s MatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form written by MarshalText.
func (s *MatchStatus) UnmarshalText(text []byte) error {
	for v := MatchStatus(0); v <= MatchInvalidProbe; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown match status %q", text)
}

// MatchResult is the tagged result of Match and MatchImage.
// EmpCode is set only when Status is MatchAccepted; Nearest always names the
// closest reference when one was compared.
type MatchResult struct {
	Status     MatchStatus `json:"status"`
	EmpCode    string      `json:"emp_code,omitempty"`
	Nearest    string      `json:"nearest,omitempty"`
	Similarity float64     `json:"similarity"`
	Threshold  float64     `json:"threshold"`
	Err        error       `json:"-"`
}

// Accepted reports whether the probe was matched to an employee.
func (r MatchResult) Accepted() bool {
	return r.Status == MatchAccepted
}
