// Package attendance implements the once-per-day check-in/check-out ledger.
package attendance

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/i18n"
)

// Status is the derived state of one employee's day
type Status struct {
	Exists        bool                       `json:"exists"`
	HasCheckedIn  bool                       `json:"has_checked_in"`
	HasCheckedOut bool                       `json:"has_checked_out"`
	CanCheckIn    bool                       `json:"can_checkin"`
	CanCheckOut   bool                       `json:"can_checkout"`
	Record        *database.AttendanceRecord `json:"record,omitempty"`
}

// NextAction names what the next event for an employee will do
type NextAction string

const (
	NextCheckIn   NextAction = "CHECKIN"
	NextCheckOut  NextAction = "CHECKOUT"
	NextCompleted NextAction = "COMPLETED"
)

// Event is one attendance request. Empty Date/Time mean now.
type Event struct {
	EmpCode string
	EmpBID  string
	EmpName string
	Date    string
	Time    string
	Mode    database.CaptureMode
}

// Machine drives the per-employee-per-day state machine. It holds no lock;
// the store's uniqueness constraint is the only guard against races.
type Machine struct {
	store database.AttendanceWriter
	clock *Clock
}

// NewMachine creates a state machine over store.
func NewMachine(store database.AttendanceWriter, clock *Clock) *Machine {
	return &Machine{store: store, clock: clock}
}

// Clock returns the machine's civil clock.
func (m *Machine) Clock() *Clock {
	return m.clock
}

// Status derives the day's state for an employee.
func (m *Machine) Status(ctx context.Context, empCode, day string) (Status, error) {
	d, err := m.clock.NormalizeDay(day)
	if err != nil {
		return Status{}, err
	}

	rec, err := m.store.GetAttendance(ctx, empCode, d)
	if errors.Is(err, database.ErrNotFound) {
		return Status{CanCheckIn: true}, nil
	}
	if err != nil {
		return Status{}, err
	}

	out := rec.HasCheckedOut()
	return Status{
		Exists:        true,
		HasCheckedIn:  true,
		HasCheckedOut: out,
		CanCheckIn:    false,
		CanCheckOut:   !out,
		Record:        rec,
	}, nil
}

// Next reports what the next event for the employee would do.
func (s Status) Next() NextAction {
	switch {
	case s.CanCheckIn:
		return NextCheckIn
	case s.CanCheckOut:
		return NextCheckOut
	default:
		return NextCompleted
	}
}

// NextAction reports what the next event for the employee would do.
func (m *Machine) NextAction(ctx context.Context, empCode, day string) (NextAction, error) {
	st, err := m.Status(ctx, empCode, day)
	if err != nil {
		return "", err
	}
	return st.Next(), nil
}

func (m *Machine) result(ctx context.Context, o Outcome, ev Event, msgID string, data map[string]any) Result {
	return Result{
		Outcome: o,
		Success: o.Success(),
		Action:  o.Action(),
		Message: i18n.T(ctx, msgID, data),
		EmpCode: ev.EmpCode,
		EmpName: ev.EmpName,
		Date:    ev.Date,
		Time:    ev.Time,
	}
}

// Process applies one event: check in when no record exists, otherwise
// record (or re-record) the checkout time.
func (m *Machine) Process(ctx context.Context, ev Event) Result {
	ev.EmpCode = strings.TrimSpace(ev.EmpCode)
	if ev.EmpCode == "" {
		return m.result(ctx, OutcomeInvalidInput, ev, "attendance.invalid_input",
			map[string]any{"Reason": "employee code is required"})
	}

	day, err := m.clock.NormalizeDay(ev.Date)
	if err != nil {
		return m.result(ctx, OutcomeInvalidInput, ev, "attendance.invalid_input", map[string]any{"Reason": err.Error()})
	}
	clock, err := m.clock.NormalizeTime(ev.Time)
	if err != nil {
		return m.result(ctx, OutcomeInvalidInput, ev, "attendance.invalid_input", map[string]any{"Reason": err.Error()})
	}
	ev.Date, ev.Time = day, clock
	if ev.EmpName == "" {
		ev.EmpName = ev.EmpCode
	}
	if ev.Mode == "" {
		ev.Mode = database.ModeFace
	}

	st, err := m.Status(ctx, ev.EmpCode, day)
	if err != nil {
		return m.storeError(ctx, ev, err)
	}

	if !st.Exists {
		return m.checkIn(ctx, ev)
	}
	if st.Record.EmpFullName != "" {
		ev.EmpName = st.Record.EmpFullName
	}
	return m.checkOut(ctx, ev, st.HasCheckedOut)
}

func (m *Machine) checkIn(ctx context.Context, ev Event) Result {
	stamp := m.clock.Stamp()
	id, err := m.store.InsertCheckIn(ctx, database.AttendanceRecord{
		EmpBID:      ev.EmpBID,
		EmpCode:     ev.EmpCode,
		EmpFullName: ev.EmpName,
		CheckinDate: ev.Date,
		CheckinTime: ev.Time,
		Mode:        ev.Mode,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return m.result(ctx, OutcomeDuplicate, ev, "attendance.duplicate",
			map[string]any{"Code": ev.EmpCode, "Date": ev.Date})
	}
	if err != nil {
		return m.storeError(ctx, ev, err)
	}

	res := m.result(ctx, OutcomeCheckedIn, ev, "attendance.checked_in",
		map[string]any{"Name": ev.EmpName, "Time": ev.Time})
	res.RecordID = id
	return res
}

func (m *Machine) checkOut(ctx context.Context, ev Event, repeated bool) Result {
	n, err := m.store.UpdateCheckout(ctx, database.CheckoutUpdate{
		EmpCode:      ev.EmpCode,
		CheckinDate:  ev.Date,
		CheckoutDate: ev.Date,
		CheckoutTime: ev.Time,
		UpdatedAt:    m.clock.Stamp(),
	})
	if err != nil {
		return m.storeError(ctx, ev, err)
	}
	if n == 0 {
		return m.result(ctx, OutcomeNoRecord, ev, "attendance.no_record",
			map[string]any{"Code": ev.EmpCode, "Date": ev.Date})
	}
	if repeated {
		return m.result(ctx, OutcomeCheckoutRepeated, ev, "attendance.checkout_repeated", nil)
	}
	return m.result(ctx, OutcomeCheckedOut, ev, "attendance.checked_out", nil)
}

func (m *Machine) storeError(ctx context.Context, ev Event, err error) Result {
	log.Printf("attendance: store error for %s on %s: %v", ev.EmpCode, ev.Date, err)
	res := m.result(ctx, OutcomeStoreError, ev, "attendance.store_error", nil)
	res.Err = err
	return res
}
