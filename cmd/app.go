package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/backup"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/directory"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/i18n"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// app holds the components every command builds from the configuration.
type app struct {
	cfg       *config.Config
	loc       *time.Location
	pool      *sqlite.Pool
	employees *sqlite.EmployeeRepository
	ledger    *sqlite.AttendanceRepository
	machine   *attendance.Machine
	directory *directory.Service
	closers   []func()
}

// openApp loads the configuration and opens the primary store.
func openApp() (*app, error) {
	cfg := config.Load()
	if err := i18n.Init(cfg.Terminal.Locale); err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	loc := cfg.Terminal.Location()
	pool, err := sqlite.Initialize(&cfg.Database, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	employees := sqlite.NewEmployeeRepository(pool)
	ledger := sqlite.NewAttendanceRepository(pool)
	a := &app{
		cfg:       cfg,
		loc:       loc,
		pool:      pool,
		employees: employees,
		ledger:    ledger,
		machine:   attendance.NewMachine(ledger, attendance.NewClock(loc, nil)),
		directory: directory.NewService(employees, sqlite.NewSessionRepository(pool), cfg.Terminal.ImageDir),
	}
	a.closers = append(a.closers, func() { pool.Close() })
	return a, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) embeddingClient() *fingerprint.EmbeddingClient {
	return fingerprint.NewEmbeddingClient(a.cfg.Embedding.URL, constants.DetectionTimeout)
}

// newIndex creates an identity index over the configured image directory.
// progress may be nil.
func (a *app) newIndex(progress func()) *identity.Index {
	return identity.NewIndex(a.cfg.Terminal.ImageDir, a.embeddingClient(), identity.BuildOptions{
		Concurrency:  a.cfg.Terminal.BuildConcurrency,
		MaxImageSize: constants.MaxImageSize,
		Progress:     progress,
	})
}

// connectMirror opens the PostgreSQL mirror, or returns nil when none is configured.
func (a *app) connectMirror(ctx context.Context) (*postgres.Mirror, error) {
	if a.cfg.Backup.Mirror.URL == "" {
		return nil, nil
	}
	pool, err := postgres.Connect(ctx, &a.cfg.Backup.Mirror)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mirror database: %w", err)
	}
	a.closers = append(a.closers, func() { pool.Close() })
	return postgres.NewMirror(pool), nil
}

// newScheduler wires the backup scheduler with every configured off-site
// destination. faces may be nil. Unreachable destinations are reported and
// skipped.
func (a *app) newScheduler(ctx context.Context, faces backup.FaceSource) (*backup.Scheduler, *backup.UploadQueue, error) {
	cfg := &a.cfg.Backup
	root := backup.ResolveRoot(ctx, cfg, a.pool.Path(), backup.HostPartitions{})
	layout := backup.NewLayout(root, cfg.Folders)

	var uploaders []backup.Uploader
	if cfg.MongoURI != "" {
		g, err := backup.NewGridFSUploader(ctx, cfg.MongoURI, cfg.MongoDatabase, a.cfg.Terminal.Name)
		if err != nil {
			fmt.Printf("Warning: GridFS uploads disabled: %v\n", err)
		} else {
			a.closers = append(a.closers, func() { g.Close(context.Background()) })
			uploaders = append(uploaders, g)
		}
	}
	mirror, err := a.connectMirror(ctx)
	if err != nil {
		fmt.Printf("Warning: mirror uploads disabled: %v\n", err)
	} else if mirror != nil {
		uploaders = append(uploaders, backup.NewMirrorUploader(mirror, faces, a.cfg.Terminal.Name))
	}

	var (
		queue *backup.UploadQueue
		probe backup.Probe
	)
	if len(uploaders) > 0 {
		queue = backup.NewUploadQueue(cfg.UploadTimeout, constants.UploadQueueSize, uploaders...)
		probe = backup.TCPProbe{Addr: cfg.ProbeAddr, Timeout: constants.ProbeTimeout}
	}

	sched, err := backup.NewScheduler(cfg, layout, a.pool, a.ledger, queue, probe, a.loc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create backup scheduler: %w", err)
	}
	return sched, queue, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
