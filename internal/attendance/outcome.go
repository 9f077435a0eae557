package attendance

import "fmt"

// Outcome tags the result of processing one attendance event
type Outcome int

const (
	// OutcomeCheckedIn: no record existed, a CHECKED_IN record was created
	OutcomeCheckedIn Outcome = iota
	// OutcomeCheckedOut: the first checkout of the day was recorded
	OutcomeCheckedOut
	// OutcomeCheckoutRepeated: an already checked-out record got a new checkout time
	OutcomeCheckoutRepeated
	// OutcomeDuplicate: a concurrent check-in won the uniqueness race
	OutcomeDuplicate
	// OutcomeNoRecord: the checkout update touched no rows
	OutcomeNoRecord
	// OutcomeInvalidInput: missing code or unparseable date/time
	OutcomeInvalidInput
	// OutcomeStoreError: the store failed
	OutcomeStoreError
)

// Machine-readable action tags reported to callers.
const (
	ActionCheckedIn         = "CHECKED_IN"
	ActionCheckedOutUpdated = "CHECKED_OUT_UPDATED"
	ActionDuplicateEntry    = "DUPLICATE_ENTRY"
	ActionNoRecord          = "NO_RECORD"
	ActionInvalidInput      = "INVALID_INPUT"
	ActionDatabaseError     = "DATABASE_ERROR"
)

// Action returns the machine-readable tag. Both checkout outcomes share
// CHECKED_OUT_UPDATED; the Outcome itself tells them apart.
func (o Outcome) Action() string {
	switch o {
	case OutcomeCheckedIn:
		return ActionCheckedIn
	case OutcomeCheckedOut, OutcomeCheckoutRepeated:
		return ActionCheckedOutUpdated
	case OutcomeDuplicate:
		return ActionDuplicateEntry
	case OutcomeNoRecord:
		return ActionNoRecord
	case OutcomeInvalidInput:
		return ActionInvalidInput
	case OutcomeStoreError:
		return ActionDatabaseError
	}
	return ActionDatabaseError
}

// Success reports whether the outcome mutated the ledger as requested.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeCheckedIn, OutcomeCheckedOut, OutcomeCheckoutRepeated:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o {
	case OutcomeCheckedIn:
		return "checked_in"
	case OutcomeCheckedOut:
		return "checked_out"
	case OutcomeCheckoutRepeated:
		return "checkout_repeated"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoRecord:
		return "no_record"
	case OutcomeInvalidInput:
		return "invalid_input"
	case OutcomeStoreError:
		return "store_error"
	}
	return "unknown"
}

// MarshalText renders the outcome as its string form in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses the string form written by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	for v := Outcome(0); v <= OutcomeStoreError; v++ {
		if v.String() == string(text) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Result is what Process returns for every event
type Result struct {
	Outcome  Outcome `json:"outcome"`
	Success  bool    `json:"success"`
	Action   string  `json:"action"`
	Message  string  `json:"message"`
	RecordID int64   `json:"record_id,omitempty"`
	EmpCode  string  `json:"emp_code"`
	EmpName  string  `json:"emp_name,omitempty"`
	Date     string  `json:"date,omitempty"`
	Time     string  `json:"time,omitempty"`
	Err      error   `json:"-"`
}
