package backup

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
)

// 2024-07-01 is a Monday and the first of the month.
var cycleTime = time.Date(2024, 7, 1, 11, 0, 0, 0, time.UTC)

func testBackupConfig() *config.BackupConfig {
	return &config.BackupConfig{
		Mode:       ModeInterval,
		Interval:   12 * time.Hour,
		Times:      []string{"11:00", "19:00"},
		WeeklyDay:  "monday",
		MonthlyDay: 1,
		RootName:   "AttendanceBackups",
		Folders:    config.BackupFolders{Daily: "Daily", Weekly: "Weekly", Monthly: "Monthly"},
		Windows:    config.BackupWindows{Daily: 1, Weekly: 7, Monthly: 30},
	}
}

type fixture struct {
	pool  *sqlite.Pool
	repo  *sqlite.AttendanceRepository
	sched *Scheduler
	clock *time.Time
}

func setupScheduler(t *testing.T, uploads *UploadQueue, probe Probe) *fixture {
	t.Helper()

	pool, err := sqlite.Initialize(&config.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "employees.db"),
		MaxOpenConns:  4,
		BusyTimeoutMs: 5000,
	}, time.UTC)
	if err != nil {
		t.Fatalf("Failed to initialize pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	repo := sqlite.NewAttendanceRepository(pool)
	cfg := testBackupConfig()
	layout := NewLayout(filepath.Join(t.TempDir(), cfg.RootName), cfg.Folders)

	sched, err := NewScheduler(cfg, layout, pool, repo, uploads, probe, time.UTC)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	now := cycleTime
	sched.SetClock(func() time.Time { return now })
	return &fixture{pool: pool, repo: repo, sched: sched, clock: &now}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	rows := []struct{ code, created string }{
		{"E1", "2024-07-01 09:00:00"},
		{"E2", "2024-06-27 09:00:00"},
		{"E3", "2024-06-10 09:00:00"},
		{"E4", "2024-05-01 09:00:00"},
	}
	for _, r := range rows {
		day := r.created[:10]
		if _, err := f.repo.InsertCheckIn(context.Background(), database.AttendanceRecord{
			EmpCode: r.code, EmpFullName: r.code, CheckinDate: day, CheckinTime: "09:00:00",
			CreatedAt: r.created, UpdatedAt: r.created,
		}); err != nil {
			t.Fatalf("InsertCheckIn failed: %v", err)
		}
	}
}

func stepsByLabel(r *CycleReport) map[Label]StepReport {
	out := make(map[Label]StepReport)
	for _, s := range r.Steps {
		out[s.Label] = s
	}
	return out
}

func TestLayoutNames(t *testing.T) {
	l := NewLayout("/backups/AttendanceBackups", config.BackupFolders{Daily: "Daily", Weekly: "Weekly", Monthly: "Monthly"})

	tests := []struct {
		label Label
		want  string
	}{
		{LabelFull, "/backups/AttendanceBackups"},
		{LabelDaily, "/backups/AttendanceBackups/Daily"},
		{LabelWeekly, "/backups/AttendanceBackups/Weekly"},
		{LabelMonthly, "/backups/AttendanceBackups/Monthly"},
	}
	for _, tt := range tests {
		if got := l.Dir(tt.label); got != tt.want {
			t.Errorf("Dir(%s) = %s, want %s", tt.label, got, tt.want)
		}
	}

	if got := FullName("20240701_110000"); got != "db_backup_20240701_110000.db" {
		t.Errorf("unexpected full name %s", got)
	}
	if got := ExtractName(LabelWeekly, "20240701_110000"); got != "weekly_attendance_20240701_110000.db" {
		t.Errorf("unexpected extract name %s", got)
	}
}

type fakePartitions struct {
	parts []disk.PartitionStat
	free  map[string]uint64
	err   error
}

func (f *fakePartitions) Partitions(context.Context) ([]disk.PartitionStat, error) {
	return f.parts, f.err
}

func (f *fakePartitions) Usage(_ context.Context, path string) (*disk.UsageStat, error) {
	free, ok := f.free[path]
	if !ok {
		return nil, errors.New("no such mount")
	}
	return &disk.UsageStat{Path: path, Free: free}, nil
}

func TestResolveRoot(t *testing.T) {
	dbMount := t.TempDir()
	alt := t.TempDir()
	small := t.TempDir()
	readOnly := t.TempDir()
	dbPath := filepath.Join(dbMount, "data", "employees.db")
	cfg := testBackupConfig()
	ctx := context.Background()

	lots := uint64(10 << 30)

	tests := []struct {
		name   string
		dir    string
		lister PartitionLister
		want   string
	}{
		{
			name: "explicit directory",
			dir:  "/mnt/usb/backups",
			want: "/mnt/usb/backups",
		},
		{
			name: "alternate partition",
			lister: &fakePartitions{
				parts: []disk.PartitionStat{{Device: "sda1", Mountpoint: dbMount}, {Device: "sdb1", Mountpoint: alt}},
				free:  map[string]uint64{dbMount: lots, alt: lots},
			},
			want: filepath.Join(alt, cfg.RootName),
		},
		{
			name: "skips read-only and full partitions",
			lister: &fakePartitions{
				parts: []disk.PartitionStat{
					{Device: "sda1", Mountpoint: dbMount},
					{Device: "sdc1", Mountpoint: small},
					{Device: "sr0", Mountpoint: readOnly, Opts: []string{"ro"}},
				},
				free: map[string]uint64{dbMount: lots, small: 1 << 20, readOnly: lots},
			},
			want: filepath.Join(dbMount, "data", cfg.RootName),
		},
		{
			name:   "listing fails",
			lister: &fakePartitions{err: errors.New("permission denied")},
			want:   filepath.Join(dbMount, "data", cfg.RootName),
		},
		{
			name: "no lister",
			want: filepath.Join(dbMount, "data", cfg.RootName),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.Dir = tt.dir
			if got := ResolveRoot(ctx, &c, dbPath, tt.lister); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestScheduleNext(t *testing.T) {
	interval, err := newSchedule(ModeInterval, 12*time.Hour, nil)
	if err != nil {
		t.Fatalf("newSchedule failed: %v", err)
	}
	if !interval.runsAtStart() {
		t.Error("interval mode should run at start")
	}
	if got := interval.next(cycleTime); !got.Equal(cycleTime.Add(12 * time.Hour)) {
		t.Errorf("unexpected interval wake %v", got)
	}

	fixed, err := newSchedule(ModeFixed, 0, []string{"19:00", "11:00", "11:00"})
	if err != nil {
		t.Fatalf("newSchedule failed: %v", err)
	}
	if fixed.runsAtStart() {
		t.Error("fixed mode should wait for the first time of day")
	}

	day := func(d, h, m int) time.Time { return time.Date(2024, 7, d, h, m, 0, 0, time.UTC) }
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{day(1, 8, 0), day(1, 11, 0)},
		{day(1, 11, 0), day(1, 19, 0)},
		{day(1, 12, 30), day(1, 19, 0)},
		{day(1, 19, 0), day(2, 11, 0)},
		{day(1, 23, 59), day(2, 11, 0)},
	}
	for _, tt := range tests {
		if got := fixed.next(tt.now); !got.Equal(tt.want) {
			t.Errorf("next(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}

	for _, bad := range []struct {
		mode     string
		interval time.Duration
		times    []string
	}{
		{"hourly", time.Hour, nil},
		{ModeFixed, 0, []string{"7pm"}},
		{ModeFixed, 0, nil},
		{ModeInterval, 0, nil},
	} {
		if _, err := newSchedule(bad.mode, bad.interval, bad.times); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}

func TestRunOnce_FullCycle(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.seed(t)
	ctx := context.Background()

	report := f.sched.RunOnce(ctx)
	if report.ID == "" {
		t.Error("expected cycle id")
	}
	if report.Failed() {
		t.Fatalf("cycle failed: %+v", report.Steps)
	}

	steps := stepsByLabel(report)
	want := map[Label]int{LabelFull: 4, LabelDaily: 1, LabelWeekly: 2, LabelMonthly: 3}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for label, rows := range want {
		s := steps[label]
		if s.Artifact == nil {
			t.Fatalf("%s: expected artifact", label)
		}
		if filepath.Dir(s.Artifact.Path) != f.sched.Layout().Dir(label) {
			t.Errorf("%s: artifact in wrong folder %s", label, s.Artifact.Path)
		}
		if s.Artifact.CycleID != report.ID {
			t.Errorf("%s: expected cycle id %s, got %s", label, report.ID, s.Artifact.CycleID)
		}
		got, err := sqlite.ReadAttendanceArtifact(ctx, s.Artifact.Path)
		if err != nil {
			t.Fatalf("%s: read artifact: %v", label, err)
		}
		if len(got) != rows {
			t.Errorf("%s: expected %d rows, got %d", label, rows, len(got))
		}
	}

	if base := filepath.Base(steps[LabelFull].Artifact.Path); base != "db_backup_20240701_110000.db" {
		t.Errorf("unexpected snapshot name %s", base)
	}
	if base := filepath.Base(steps[LabelDaily].Artifact.Path); base != "daily_attendance_20240701_110000.db" {
		t.Errorf("unexpected daily name %s", base)
	}

	// Second wake the same day: weekly and monthly are not repeated.
	*f.clock = cycleTime.Add(8 * time.Hour)
	second := stepsByLabel(f.sched.RunOnce(ctx))
	if _, ok := second[LabelWeekly]; ok {
		t.Error("weekly extract ran twice on the same day")
	}
	if _, ok := second[LabelMonthly]; ok {
		t.Error("monthly extract ran twice on the same day")
	}
	if second[LabelFull].Artifact == nil || second[LabelDaily].Artifact == nil {
		t.Error("expected full and daily artifacts on the second wake")
	}
}

func TestRunOnce_OrdinaryDay(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	*f.clock = time.Date(2024, 7, 3, 11, 0, 0, 0, time.UTC) // Wednesday

	report := f.sched.RunOnce(context.Background())
	steps := stepsByLabel(report)
	if len(steps) != 2 {
		t.Fatalf("expected full and daily steps only, got %+v", report.Steps)
	}
	if steps[LabelDaily].Skipped == "" || steps[LabelDaily].Artifact != nil {
		t.Errorf("expected empty daily extract to be skipped, got %+v", steps[LabelDaily])
	}
	entries, err := os.ReadDir(f.sched.Layout().Daily)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no daily files, got %d", len(entries))
	}
}

func TestExtract_RerunIsIdempotent(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.seed(t)
	ctx := context.Background()

	first, err := f.sched.Extract(ctx, LabelWeekly, 7)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := f.sched.Extract(ctx, LabelWeekly, 7)
	if err != nil {
		t.Fatalf("Extract rerun failed: %v", err)
	}
	if first.Path != second.Path {
		t.Fatalf("expected the same artifact path, got %s and %s", first.Path, second.Path)
	}

	rows, err := sqlite.ReadAttendanceArtifact(ctx, second.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows after rerun, got %d", len(rows))
	}
}

type missingStore struct{}

func (missingStore) Path() string { return "/nonexistent/employees.db" }

func (missingStore) Snapshot(context.Context, string) error { return errors.New("unreachable") }

func TestRunOnce_MissingDatabaseContinues(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.seed(t)
	f.sched.store = missingStore{}

	steps := stepsByLabel(f.sched.RunOnce(context.Background()))
	if !strings.Contains(steps[LabelFull].Error, ErrNoDatabase.Error()) {
		t.Errorf("expected missing database error, got %q", steps[LabelFull].Error)
	}
	if steps[LabelDaily].Artifact == nil {
		t.Error("expected daily extract to run after a failed snapshot")
	}
}

func TestRunOnce_Canceled(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.sched.RunOnce(ctx)
	if !report.Canceled {
		t.Error("expected canceled cycle")
	}
	if len(report.Steps) != 0 {
		t.Errorf("expected no steps after cancellation, got %d", len(report.Steps))
	}
}

type staticProbe bool

func (p staticProbe) Online(context.Context) bool { return bool(p) }

type recordingUploader struct {
	mu    sync.Mutex
	files []string
	err   error
}

func (u *recordingUploader) Name() string { return "recording" }

func (u *recordingUploader) Upload(_ context.Context, a database.BackupArtifact) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, filepath.Base(a.Path))
	return u.err
}

func TestRunOnce_QueuesUploadsWhenOnline(t *testing.T) {
	up := &recordingUploader{}
	q := NewUploadQueue(time.Second, 8, up)
	q.Start(context.Background())

	f := setupScheduler(t, q, staticProbe(true))
	f.seed(t)

	report := f.sched.RunOnce(context.Background())
	if !report.Online {
		t.Error("expected online cycle")
	}
	for _, s := range report.Steps {
		if !s.Queued {
			t.Errorf("%s: expected artifact to be queued", s.Label)
		}
	}
	q.Close()

	if len(up.files) != 4 {
		t.Errorf("expected 4 uploads, got %v", up.files)
	}
	for _, r := range q.Records() {
		if r.Status != UploadCompleted {
			t.Errorf("%s: expected completed, got %s", r.File, r.Status)
		}
	}

	st := f.sched.Status()
	if st.LastCycle == nil || st.LastCycle.ID != report.ID {
		t.Error("expected last cycle in status")
	}
	if len(st.Destinations) != 1 || st.Destinations[0] != "recording" {
		t.Errorf("unexpected destinations %v", st.Destinations)
	}
}

func TestRunOnce_OfflineSkipsUploads(t *testing.T) {
	up := &recordingUploader{}
	q := NewUploadQueue(time.Second, 8, up)
	q.Start(context.Background())

	f := setupScheduler(t, q, staticProbe(false))
	f.seed(t)

	report := f.sched.RunOnce(context.Background())
	q.Close()
	if report.Online {
		t.Error("expected offline cycle")
	}
	if len(up.files) != 0 {
		t.Errorf("expected no uploads, got %v", up.files)
	}
	if len(q.Records()) != 0 {
		t.Errorf("expected empty upload history, got %d", len(q.Records()))
	}
}

func TestSchedulerLoop_TriggerAndStop(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.sched.schedule, _ = newSchedule(ModeFixed, 0, []string{"03:00"})
	f.seed(t)

	if err := f.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.sched.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}

	f.sched.Trigger()
	deadline := time.Now().Add(5 * time.Second)
	for f.sched.Status().LastCycle == nil {
		if time.Now().After(deadline) {
			t.Fatal("triggered cycle did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := f.sched.Status()
	if !st.Running {
		t.Error("expected running scheduler")
	}
	f.sched.Stop()
	if f.sched.Status().Running {
		t.Error("expected stopped scheduler")
	}
	f.sched.Stop()
}

type blockingUploader struct {
	release chan struct{}
}

func (u *blockingUploader) Name() string { return "blocking" }

func (u *blockingUploader) Upload(ctx context.Context, _ database.BackupArtifact) error {
	select {
	case <-u.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestUploadQueue_DropsWhenFull(t *testing.T) {
	up := &blockingUploader{release: make(chan struct{})}
	q := NewUploadQueue(time.Minute, 1, up)

	a := func(name string) database.BackupArtifact {
		return database.BackupArtifact{Path: "/b/" + name, Label: "daily", CycleID: "c1"}
	}
	if !q.Enqueue(a("one.db")) {
		t.Fatal("expected first enqueue to succeed")
	}
	if q.Enqueue(a("two.db")) {
		t.Fatal("expected full queue to drop")
	}

	q.Start(context.Background())
	close(up.release)
	q.Close()

	if q.Enqueue(a("three.db")) {
		t.Error("expected closed queue to refuse artifacts")
	}
	recs := q.Records()
	if len(recs) != 1 || recs[0].File != "one.db" || recs[0].Status != UploadCompleted {
		t.Errorf("unexpected records %+v", recs)
	}
}

func TestUploadQueue_FailureAndTimeout(t *testing.T) {
	failing := &recordingUploader{err: errors.New("quota exceeded")}
	slow := &blockingUploader{release: make(chan struct{})}
	q := NewUploadQueue(20*time.Millisecond, 4, failing, slow)
	q.Start(context.Background())

	q.Enqueue(database.BackupArtifact{Path: "/b/x.db", CycleID: "c1"})
	q.Close()

	recs := q.Records()
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	if recs[0].Status != UploadFailed {
		t.Errorf("expected failed, got %s", recs[0].Status)
	}
	if !strings.Contains(recs[0].Error, "quota exceeded") || !strings.Contains(recs[0].Error, "deadline exceeded") {
		t.Errorf("expected both errors, got %q", recs[0].Error)
	}
}

func TestUploadQueue_NoUploaders(t *testing.T) {
	q := NewUploadQueue(time.Second, 0)
	if q.Enqueue(database.BackupArtifact{Path: "/b/x.db"}) {
		t.Error("expected queue without uploaders to refuse artifacts")
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	if !(TCPProbe{Addr: addr, Timeout: time.Second}).Online(context.Background()) {
		t.Error("expected listener to be reachable")
	}
	ln.Close()
	if (TCPProbe{Addr: addr, Timeout: time.Second}).Online(context.Background()) {
		t.Error("expected closed listener to be unreachable")
	}
}

type fakeMirror struct {
	attendance []database.AttendanceRecord
	employees  []database.Employee
	faces      []database.EnrolledFace
	uploads    []database.BackupArtifact
}

func (m *fakeMirror) MirrorAttendance(_ context.Context, _ string, rows []database.AttendanceRecord) (int, error) {
	m.attendance = append(m.attendance, rows...)
	return len(rows), nil
}

func (m *fakeMirror) MirrorEmployees(_ context.Context, emps []database.Employee) (int, error) {
	m.employees = append(m.employees, emps...)
	return len(emps), nil
}

func (m *fakeMirror) MirrorFaces(_ context.Context, _ string, faces []database.EnrolledFace) (int, error) {
	m.faces = append(m.faces, faces...)
	return len(faces), nil
}

func (m *fakeMirror) RecordUpload(_ context.Context, _ string, a database.BackupArtifact) error {
	m.uploads = append(m.uploads, a)
	return nil
}

type staticFaces []database.EnrolledFace

func (s staticFaces) Embeddings() []database.EnrolledFace { return s }

func TestMirrorUploader(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.seed(t)
	ctx := context.Background()

	emps := sqlite.NewEmployeeRepository(f.pool)
	if err := emps.InsertEmployee(ctx, database.Employee{EmpCode: "E1", FullName: "Asha Rao"}); err != nil {
		t.Fatalf("InsertEmployee failed: %v", err)
	}

	report := f.sched.RunOnce(ctx)
	steps := stepsByLabel(report)

	// Changes after the snapshot must not reach the mirror.
	if err := emps.InsertEmployee(ctx, database.Employee{EmpCode: "E2", FullName: "Late Hire"}); err != nil {
		t.Fatalf("InsertEmployee failed: %v", err)
	}

	m := &fakeMirror{}
	up := NewMirrorUploader(m, staticFaces{{EmpCode: "E1", Source: "E1.jpg", Embedding: []float32{1}}}, "gate-1")

	if err := up.Upload(ctx, *steps[LabelDaily].Artifact); err != nil {
		t.Fatalf("Upload daily failed: %v", err)
	}
	if len(m.attendance) != 1 || len(m.employees) != 0 || len(m.faces) != 0 {
		t.Errorf("extract should mirror rows only: %d rows, %d employees, %d faces",
			len(m.attendance), len(m.employees), len(m.faces))
	}

	if err := up.Upload(ctx, *steps[LabelFull].Artifact); err != nil {
		t.Fatalf("Upload full failed: %v", err)
	}
	if len(m.attendance) != 5 {
		t.Errorf("expected 5 mirrored rows in total, got %d", len(m.attendance))
	}
	if len(m.employees) != 1 || len(m.faces) != 1 {
		t.Fatalf("full snapshot should mirror employees and faces, got %d and %d", len(m.employees), len(m.faces))
	}
	if m.employees[0].EmpCode != "E1" {
		t.Errorf("mirrored employee %q, want the snapshot's E1", m.employees[0].EmpCode)
	}
	if len(m.uploads) != 2 || m.uploads[1].Rows != 4 {
		t.Errorf("unexpected recorded uploads %+v", m.uploads)
	}
}

func TestNextWake_FixedTimesInTerminalZone(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	cfg := testBackupConfig()
	cfg.Mode = ModeFixed
	ist := time.FixedZone("IST", 5*3600+30*60)

	sched, err := NewScheduler(cfg, f.sched.Layout(), f.pool, f.repo, nil, nil, ist)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	// 04:00 UTC is 09:30 IST, so the next run is 11:00 IST.
	sched.SetClock(func() time.Time { return time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC) })

	_, next := sched.nextWake()
	if want := time.Date(2024, 7, 1, 5, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next wake = %v, want %v", next.UTC(), want)
	}
	if st := sched.Status(); st.NextRun == nil || !st.NextRun.Equal(next) {
		t.Errorf("status next run = %v, want %v", st.NextRun, next)
	}
}

// cancelingLedger cancels the cycle's context while a step is reading rows.
type cancelingLedger struct {
	database.AttendanceReader
	cancel context.CancelFunc
}

func (l *cancelingLedger) ListAttendanceCreatedSince(ctx context.Context, since string) ([]database.AttendanceRecord, error) {
	rows, err := l.AttendanceReader.ListAttendanceCreatedSince(ctx, since)
	l.cancel()
	return rows, err
}

func TestRunOnce_StopDuringStepFinishesArtifact(t *testing.T) {
	f := setupScheduler(t, nil, nil)
	f.seed(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched, err := NewScheduler(testBackupConfig(), f.sched.Layout(), f.pool,
		&cancelingLedger{AttendanceReader: f.repo, cancel: cancel}, nil, nil, time.UTC)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	sched.SetClock(func() time.Time { return cycleTime })

	report := sched.RunOnce(ctx)
	if !report.Canceled {
		t.Error("expected the cycle to stop after the interrupted step")
	}
	steps := stepsByLabel(report)
	if len(steps) != 2 {
		t.Fatalf("expected full and daily steps only, got %+v", report.Steps)
	}
	daily := steps[LabelDaily]
	if daily.Error != "" || daily.Artifact == nil {
		t.Fatalf("expected a finished daily artifact, got %+v", daily)
	}
	rows, err := sqlite.ReadAttendanceArtifact(context.Background(), daily.Artifact.Path)
	if err != nil {
		t.Fatalf("ReadAttendanceArtifact failed: %v", err)
	}
	if len(rows) != daily.Artifact.Rows || len(rows) != 1 {
		t.Errorf("expected 1 complete row, got %d (reported %d)", len(rows), daily.Artifact.Rows)
	}
}

// flakyProbe reports offline for the first n checks.
type flakyProbe struct {
	mu      sync.Mutex
	offline int
	calls   int
}

func (p *flakyProbe) Online(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.calls > p.offline
}

func TestRunOnce_ProbesConnectivityPerStep(t *testing.T) {
	up := &recordingUploader{}
	q := NewUploadQueue(time.Second, 8, up)
	q.Start(context.Background())

	probe := &flakyProbe{offline: 1}
	f := setupScheduler(t, q, probe)
	f.seed(t)

	report := f.sched.RunOnce(context.Background())
	q.Close()

	steps := stepsByLabel(report)
	if steps[LabelFull].Queued {
		t.Error("full snapshot finished while offline and should not be queued")
	}
	for _, l := range []Label{LabelDaily, LabelWeekly, LabelMonthly} {
		if !steps[l].Queued {
			t.Errorf("%s: expected queued once connectivity returned", l)
		}
	}
	if probe.calls != 4 {
		t.Errorf("expected one probe per finished step, got %d", probe.calls)
	}
	if len(up.files) != 3 {
		t.Errorf("expected 3 uploads, got %v", up.files)
	}
}
