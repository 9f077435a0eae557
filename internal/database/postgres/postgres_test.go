//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "mirror",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.MirrorConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/mirror?sslmode=disable", host, port.Port()),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
	pool, err := Connect(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func record(code, clock, updated string) database.AttendanceRecord {
	r := database.AttendanceRecord{
		EmpCode:     code,
		EmpFullName: "Employee " + code,
		CheckinDate: "2024-05-01",
		CheckinTime: "09:00:00",
		Status:      database.StatusCheckedIn,
		Mode:        database.ModeFace,
		CreatedAt:   "2024-05-01 09:00:00",
		UpdatedAt:   updated,
	}
	if clock != "" {
		r.CheckoutDate = "2024-05-01"
		r.CheckoutTime = clock
		r.Status = database.StatusCheckedOut
	}
	return r
}

func TestMirror(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	m := NewMirror(pool)

	t.Run("MigrateIdempotent", func(t *testing.T) {
		if err := pool.Migrate(ctx); err != nil {
			t.Fatalf("second Migrate failed: %v", err)
		}
		applied, err := pool.MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("MigrationsApplied failed: %v", err)
		}
		if len(applied) != 1 || applied[0] != "001_mirror.sql" {
			t.Errorf("unexpected migrations %v", applied)
		}
	})

	t.Run("AttendanceUpsert", func(t *testing.T) {
		n, err := m.MirrorAttendance(ctx, "gate-1", []database.AttendanceRecord{
			record("E100", "", "2024-05-01 09:00:00"),
			record("E200", "", "2024-05-01 09:00:00"),
		})
		if err != nil {
			t.Fatalf("MirrorAttendance failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 rows written, got %d", n)
		}

		// Same rows again change nothing.
		n, err = m.MirrorAttendance(ctx, "gate-1", []database.AttendanceRecord{record("E100", "", "2024-05-01 09:00:00")})
		if err != nil {
			t.Fatalf("MirrorAttendance failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected re-send to change nothing, got %d", n)
		}

		// A later checkout wins, an older copy does not roll it back.
		if _, err := m.MirrorAttendance(ctx, "gate-1", []database.AttendanceRecord{record("E100", "18:00:00", "2024-05-01 18:00:00")}); err != nil {
			t.Fatalf("MirrorAttendance failed: %v", err)
		}
		if _, err := m.MirrorAttendance(ctx, "gate-1", []database.AttendanceRecord{record("E100", "", "2024-05-01 09:00:00")}); err != nil {
			t.Fatalf("MirrorAttendance failed: %v", err)
		}
		var checkout string
		if err := pool.QueryRow(ctx,
			"SELECT checkout_time FROM attendance_logs WHERE emp_code = 'E100'").Scan(&checkout); err != nil {
			t.Fatalf("query checkout: %v", err)
		}
		if checkout != "18:00:00" {
			t.Errorf("expected checkout 18:00:00, got %s", checkout)
		}

		count, err := m.AttendanceCount(ctx, "2024-05-01")
		if err != nil {
			t.Fatalf("AttendanceCount failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 mirrored rows, got %d", count)
		}
	})

	t.Run("Employees", func(t *testing.T) {
		n, err := m.MirrorEmployees(ctx, []database.Employee{
			{EmpCode: "E100", FullName: "Asha Rao"},
			{EmpCode: "E200", FullName: "Vikram Shah", Email: "vikram@example.com"},
		})
		if err != nil {
			t.Fatalf("MirrorEmployees failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2, got %d", n)
		}
		if _, err := m.MirrorEmployees(ctx, []database.Employee{{EmpCode: "E100", FullName: "Asha R."}}); err != nil {
			t.Fatalf("MirrorEmployees update failed: %v", err)
		}
		var name string
		if err := pool.QueryRow(ctx, "SELECT emp_full_name FROM employees WHERE emp_code = 'E100'").Scan(&name); err != nil {
			t.Fatalf("query employee: %v", err)
		}
		if name != "Asha R." {
			t.Errorf("expected updated name, got %s", name)
		}
	})

	t.Run("Faces", func(t *testing.T) {
		if _, err := m.NearestFace(ctx, unit(0)); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on empty table, got %v", err)
		}

		faces := []database.EnrolledFace{
			{EmpCode: "E100", Source: "E100.jpg", Embedding: unit(0)},
			{EmpCode: "E200", Source: "E200.jpg", Embedding: unit(1)},
			{EmpCode: "E300", Source: "E300.jpg", Embedding: []float32{1, 0, 0}},
		}
		n, err := m.MirrorFaces(ctx, "gate-1", faces)
		if err != nil {
			t.Fatalf("MirrorFaces failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected wrong-dimension face to be skipped, got %d written", n)
		}

		code, dist, err := m.NearestFace(ctx, unit(1))
		if err != nil {
			t.Fatalf("NearestFace failed: %v", err)
		}
		if code != "E200" {
			t.Errorf("expected E200, got %s", code)
		}
		if dist > 1e-6 {
			t.Errorf("expected zero distance, got %f", dist)
		}

		// Replacing keeps only the new set.
		if _, err := m.MirrorFaces(ctx, "gate-1", faces[:1]); err != nil {
			t.Fatalf("MirrorFaces replace failed: %v", err)
		}
		code, _, err = m.NearestFace(ctx, unit(1))
		if err != nil {
			t.Fatalf("NearestFace failed: %v", err)
		}
		if code != "E100" {
			t.Errorf("expected E100 after replace, got %s", code)
		}
	})

	t.Run("RecordUpload", func(t *testing.T) {
		a := database.BackupArtifact{
			Kind: database.ArtifactExtract, Label: "daily", Path: "/backups/Daily/daily_attendance_20240501_110000.db",
			Rows: 2, CycleID: "cycle-1",
		}
		if err := m.RecordUpload(ctx, "gate-1", a); err != nil {
			t.Fatalf("RecordUpload failed: %v", err)
		}
		if err := m.RecordUpload(ctx, "gate-1", a); err != nil {
			t.Fatalf("RecordUpload repeat failed: %v", err)
		}
		var n int
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM backup_uploads").Scan(&n); err != nil {
			t.Fatalf("count uploads: %v", err)
		}
		if n != 1 {
			t.Errorf("expected one upload row, got %d", n)
		}
	})
}

func unit(axis int) []float32 {
	v := make([]float32, database.FaceEmbeddingDim)
	v[axis] = 1
	return v
}
