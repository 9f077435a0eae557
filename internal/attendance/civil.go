package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// ErrInvalidDate and ErrInvalidTime report unparseable civil values.
var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time")
)

var dayLayouts = []string{
	database.DateLayout,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
}

var clockLayouts = []string{
	database.ClockLayout,
	"15:04",
	"3:04:05 PM",
	"3:04:05PM",
	"3:04 PM",
	"03:04:05 PM",
}

// Clock converts instants and loosely formatted input into the terminal's
// canonical civil date (YYYY-MM-DD) and time (HH:MM:SS).
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a clock for loc. A nil now uses time.Now.
func NewClock(loc *time.Location, now func() time.Time) *Clock {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: loc, now: now}
}

// Location returns the civil time zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the civil zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current civil date.
func (c *Clock) Today() string {
	return c.Now().Format(database.DateLayout)
}

// Stamp returns the current civil timestamp used for created_at/updated_at.
func (c *Clock) Stamp() string {
	return c.Now().Format(database.TimestampLayout)
}

// Split renders an instant as civil date and time.
func (c *Clock) Split(t time.Time) (day, clock string) {
	t = t.In(c.loc)
	return t.Format(database.DateLayout), t.Format(database.ClockLayout)
}

// NormalizeDay parses s in any accepted layout and returns YYYY-MM-DD.
// An empty string means today. RFC 3339 instants are converted to the civil zone.
func (c *Clock) NormalizeDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return c.Today(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(c.loc).Format(database.DateLayout), nil
	}
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t.Format(database.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NormalizeTime parses s in any accepted layout and returns HH:MM:SS.
// An empty string means now.
func (c *Clock) NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return c.Now().Format(database.ClockLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(c.loc).Format(database.ClockLayout), nil
	}
	upper := strings.ToUpper(s)
	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, upper, c.loc); err == nil {
			return t.Format(database.ClockLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
