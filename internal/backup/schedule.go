package backup

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Schedule modes
const (
	ModeInterval = "interval"
	ModeFixed    = "fixed"
)

// clockTime is a time of day in minutes after midnight
type clockTime int

func parseTimes(times []string) ([]clockTime, error) {
	out := make([]clockTime, 0, len(times))
	for _, s := range times {
		t, err := time.Parse("15:04", strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid backup time %q: %w", s, err)
		}
		out = append(out, clockTime(t.Hour()*60+t.Minute()))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// schedule computes wake times for either mode
type schedule struct {
	mode     string
	interval time.Duration
	times    []clockTime
}

func newSchedule(mode string, interval time.Duration, times []string) (schedule, error) {
	s := schedule{mode: mode, interval: interval}
	switch mode {
	case ModeFixed:
		parsed, err := parseTimes(times)
		if err != nil {
			return s, err
		}
		if len(parsed) == 0 {
			return s, fmt.Errorf("fixed backup mode needs at least one time")
		}
		s.times = parsed
	case ModeInterval, "":
		s.mode = ModeInterval
		if interval <= 0 {
			return s, fmt.Errorf("backup interval must be positive, got %s", interval)
		}
	default:
		return s, fmt.Errorf("unknown backup mode %q", mode)
	}
	return s, nil
}

// runsAtStart reports whether a cycle runs as soon as the loop starts.
func (s schedule) runsAtStart() bool {
	return s.mode == ModeInterval
}

// next returns the first wake strictly after now.
func (s schedule) next(now time.Time) time.Time {
	if s.mode == ModeInterval {
		return now.Add(s.interval)
	}
	y, m, d := now.Date()
	for day := 0; day < 2; day++ {
		for _, t := range s.times {
			at := time.Date(y, m, d+day, int(t)/60, int(t)%60, 0, 0, now.Location())
			if at.After(now) {
				return at
			}
		}
	}
	// unreachable with at least one time
	return now.Add(24 * time.Hour)
}
