// Package backup copies the attendance store to a secondary location on a
// fixed cadence and hands the copies to optional off-site uploaders.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
)

// ErrNoDatabase is returned when the primary store file does not exist.
var ErrNoDatabase = errors.New("database file not found")

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("backup scheduler already running")

// Snapshotter produces a consistent copy of the primary store.
type Snapshotter interface {
	Path() string
	Snapshot(ctx context.Context, dest string) error
}

// StepReport describes one step of a cycle
type StepReport struct {
	Label    Label                    `json:"label"`
	Artifact *database.BackupArtifact `json:"artifact,omitempty"`
	Skipped  string                   `json:"skipped,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Queued   bool                     `json:"queued"`
}

// CycleReport describes one backup cycle
type CycleReport struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Online     bool         `json:"online"` // connectivity seen when at least one artifact was ready
	Canceled   bool         `json:"canceled"`
	Steps      []StepReport `json:"steps"`
}

// Failed reports whether any step errored.
func (r *CycleReport) Failed() bool {
	for _, s := range r.Steps {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// Status is the scheduler state exposed to operators
type Status struct {
	Running      bool           `json:"running"`
	Mode         string         `json:"mode"`
	Layout       Layout         `json:"layout"`
	NextRun      *time.Time     `json:"next_run,omitempty"`
	LastCycle    *CycleReport   `json:"last_cycle,omitempty"`
	Destinations []string       `json:"destinations"`
	Uploads      []UploadRecord `json:"uploads"`
}

// Scheduler runs backup cycles in a single background loop.
type Scheduler struct {
	cfg      *config.BackupConfig
	layout   *Layout
	store    Snapshotter
	ledger   database.AttendanceReader
	uploads  *UploadQueue
	probe    Probe
	loc      *time.Location
	now      func() time.Time
	schedule schedule

	// serializes cycles between the loop and RunOnce
	runMu sync.Mutex

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	trigger     chan struct{}
	nextRun     time.Time
	last        *CycleReport
	lastWeekly  string
	lastMonthly string
}

// NewScheduler validates the calendar and prepares the destination tree.
// uploads and probe may be nil, which disables off-site copies.
func NewScheduler(cfg *config.BackupConfig, layout *Layout, store Snapshotter, ledger database.AttendanceReader,
	uploads *UploadQueue, probe Probe, loc *time.Location) (*Scheduler, error) {
	sched, err := newSchedule(cfg.Mode, cfg.Interval, cfg.Times)
	if err != nil {
		return nil, err
	}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cfg:      cfg,
		layout:   layout,
		store:    store,
		ledger:   ledger,
		uploads:  uploads,
		probe:    probe,
		loc:      loc,
		now:      time.Now,
		schedule: sched,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Layout returns the destination tree.
func (s *Scheduler) Layout() *Layout {
	return s.layout
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	log.Printf("backup: scheduler started (%s mode, root %s)", s.schedule.mode, s.layout.Root)
	return nil
}

// Stop cancels the loop and waits for it. A cycle in progress finishes its
// current step first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	s.cancel, s.done = nil, nil
	s.nextRun = time.Time{}
	s.mu.Unlock()
	log.Printf("backup: scheduler stopped")
}

// Trigger wakes the loop for an immediate cycle. Extra triggers while one is
// pending are ignored.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.schedule.runsAtStart() {
		s.RunOnce(ctx)
	}

	for {
		now, next := s.nextWake()

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.trigger:
			timer.Stop()
		case <-timer.C:
		}
		s.RunOnce(ctx)
	}
}

// nextWake returns the current time and the next scheduled cycle, both in
// the terminal's zone, and records the latter for Status.
func (s *Scheduler) nextWake() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	next := s.schedule.next(now)
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
	return now, next
}

// RunOnce performs one full cycle: snapshot, daily extract, and the weekly
// and monthly extracts when due. Errors are recorded per step and never
// abort the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) *CycleReport {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now().In(s.loc)
	today := now.Format(database.DateLayout)
	report := &CycleReport{ID: uuid.NewString(), StartedAt: now}
	log.Printf("backup: cycle %s started", report.ID)


	type step struct {
		label Label
		due   bool
		run   func() (*database.BackupArtifact, error)
	}
	stamp := now.Format(stampLayout)
	weekly := now.Weekday() == s.cfg.Weekday() && s.lastWeeklyDay() != today
	monthly := now.Day() == s.monthlyDay() && s.lastMonthlyDay() != today
	steps := []step{
		{LabelFull, true, func() (*database.BackupArtifact, error) { return s.full(ctx, stamp, report.ID, now) }},
		{LabelDaily, true, func() (*database.BackupArtifact, error) {
			return s.extract(ctx, LabelDaily, s.cfg.Windows.Daily, now, report.ID)
		}},
		{LabelWeekly, weekly, func() (*database.BackupArtifact, error) {
			return s.extract(ctx, LabelWeekly, s.cfg.Windows.Weekly, now, report.ID)
		}},
		{LabelMonthly, monthly, func() (*database.BackupArtifact, error) {
			return s.extract(ctx, LabelMonthly, s.cfg.Windows.Monthly, now, report.ID)
		}},
	}

	for _, st := range steps {
		if !st.due {
			continue
		}
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}

		sr := StepReport{Label: st.label}
		a, err := st.run()
		switch {
		case err != nil:
			sr.Error = err.Error()
			log.Printf("backup: %s step failed: %v", st.label, err)
		case a == nil:
			sr.Skipped = "no attendance rows in window"
			log.Printf("backup: no attendance data for %s backup", st.label)
		default:
			sr.Artifact = a
			log.Printf("backup: %s backup saved as %s (%d rows)", st.label, a.Path, a.Rows)
			if s.online(ctx) {
				report.Online = true
				sr.Queued = s.uploads.Enqueue(*a)
			}
		}
		report.Steps = append(report.Steps, sr)

		if err == nil {
			s.markDone(st.label, today)
		}
	}

	report.FinishedAt = s.now().In(s.loc)
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	log.Printf("backup: cycle %s finished", report.ID)
	return report
}

// online probes connectivity at the moment an artifact is ready.
func (s *Scheduler) online(ctx context.Context) bool {
	if s.probe == nil || s.uploads == nil {
		return false
	}
	return s.probe.Online(ctx)
}

func (s *Scheduler) monthlyDay() int {
	if s.cfg.MonthlyDay < 1 || s.cfg.MonthlyDay > 28 {
		return 1
	}
	return s.cfg.MonthlyDay
}

func (s *Scheduler) lastWeeklyDay() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWeekly
}

func (s *Scheduler) lastMonthlyDay() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMonthly
}

func (s *Scheduler) markDone(label Label, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch label {
	case LabelWeekly:
		s.lastWeekly = day
	case LabelMonthly:
		s.lastMonthly = day
	}
}

func (s *Scheduler) full(ctx context.Context, stamp, cycleID string, now time.Time) (*database.BackupArtifact, error) {
	if _, err := os.Stat(s.store.Path()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, s.store.Path())
	}
	dest := filepath.Join(s.layout.Root, FullName(stamp))
	// A started copy always completes; cancellation is honoured between steps.
	if err := s.store.Snapshot(context.WithoutCancel(ctx), dest); err != nil {
		return nil, err
	}
	return &database.BackupArtifact{
		Kind:      database.ArtifactFull,
		Label:     string(LabelFull),
		Path:      dest,
		CreatedAt: now,
		CycleID:   cycleID,
	}, nil
}

func (s *Scheduler) extract(ctx context.Context, label Label, days int, now time.Time, cycleID string) (*database.BackupArtifact, error) {
	if days <= 0 {
		days = 1
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).Format(database.TimestampLayout)
	rows, err := s.ledger.ListAttendanceCreatedSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("extract %s attendance: %w", label, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	dest := filepath.Join(s.layout.Dir(label), ExtractName(label, now.Format(stampLayout)))
	if _, err := sqlite.WriteAttendanceArtifact(context.WithoutCancel(ctx), dest, rows); err != nil {
		return nil, err
	}
	return &database.BackupArtifact{
		Kind:      database.ArtifactExtract,
		Label:     string(label),
		Path:      dest,
		Rows:      len(rows),
		CreatedAt: now,
		CycleID:   cycleID,
	}, nil
}

// Window returns the configured look-back window in days for an extract label.
func (s *Scheduler) Window(label Label) (int, error) {
	switch label {
	case LabelDaily:
		return s.cfg.Windows.Daily, nil
	case LabelWeekly:
		return s.cfg.Windows.Weekly, nil
	case LabelMonthly:
		return s.cfg.Windows.Monthly, nil
	}
	return 0, fmt.Errorf("unknown extract label %q", label)
}

// Extract writes a single extract outside the regular cycle.
func (s *Scheduler) Extract(ctx context.Context, label Label, days int) (*database.BackupArtifact, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.extract(ctx, label, days, s.now().In(s.loc), uuid.NewString())
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:   s.done != nil,
		Mode:      s.schedule.mode,
		Layout:    *s.layout,
		LastCycle: s.last,
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	s.mu.Unlock()

	st.Destinations = []string{}
	st.Uploads = []UploadRecord{}
	if s.uploads != nil {
		st.Destinations = s.uploads.Destinations()
		st.Uploads = s.uploads.Records()
	}
	return st
}
