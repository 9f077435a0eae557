package attendance

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// DailySummary aggregates the day's ledger.
func (m *Machine) DailySummary(ctx context.Context, day string) (*database.DaySummary, error) {
	d, err := m.clock.NormalizeDay(day)
	if err != nil {
		return nil, err
	}
	recs, err := m.store.ListAttendance(ctx, database.LogFilter{Date: d})
	if err != nil {
		return nil, fmt.Errorf("daily summary for %s: %w", d, err)
	}

	s := &database.DaySummary{Date: d, TotalEmployees: len(recs), Records: recs}
	for _, r := range recs {
		if r.HasCheckedOut() {
			s.Completed++
		} else {
			s.CheckedInOnly++
		}
	}
	if s.Records == nil {
		s.Records = []database.AttendanceRecord{}
	}
	return s, nil
}

// LogsByDate returns every record for the day, newest first.
func (m *Machine) LogsByDate(ctx context.Context, day string) ([]database.AttendanceRecord, error) {
	return m.Logs(ctx, database.LogFilter{Date: day})
}

// Logs returns records matching the filter. The date is normalized and
// defaults to today when neither a date nor an employee is given.
func (m *Machine) Logs(ctx context.Context, f database.LogFilter) ([]database.AttendanceRecord, error) {
	if f.Date != "" || f.EmpCode == "" {
		d, err := m.clock.NormalizeDay(f.Date)
		if err != nil {
			return nil, err
		}
		f.Date = d
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", f.Status)
	}
	recs, err := m.store.ListAttendance(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("attendance logs: %w", err)
	}
	if recs == nil {
		recs = []database.AttendanceRecord{}
	}
	return recs, nil
}

// IntegrityReport lists (employee, day) pairs with more than one record.
// Always empty while the uniqueness constraint holds.
func (m *Machine) IntegrityReport(ctx context.Context) ([]database.DuplicateGroup, error) {
	groups, err := m.store.FindDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	return groups, nil
}
