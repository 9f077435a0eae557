package directory

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
)

func setupService(t *testing.T) (*Service, *sqlite.EmployeeRepository) {
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

	repo := sqlite.NewEmployeeRepository(pool)
	svc := NewService(repo, sqlite.NewSessionRepository(pool), filepath.Join(t.TempDir(), "profile_images"))
	return svc, repo
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Asha Rao", "asha rao"},
		{"  ASHA   rao ", "asha rao"},
		{"Jiří Novák", "jiri novak"},
		{"José-María", "jose maria"},
		{"r.k. sharma", "r k sharma"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateCode(t *testing.T) {
	valid := []string{"E100", "emp-7", "A.B"}
	invalid := []string{"", "  ", "..", "../E1", `E\1`, "C:E1"}

	for _, c := range valid {
		if err := ValidateCode(c); err != nil {
			t.Errorf("ValidateCode(%q) unexpected error: %v", c, err)
		}
	}
	for _, c := range invalid {
		if err := ValidateCode(c); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("ValidateCode(%q) expected ErrInvalidCode, got %v", c, err)
		}
	}
}

func TestUpsert(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, database.Employee{EmpCode: " E100 ", FullName: "Asha Rao", Email: "asha@example.com"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !created {
		t.Error("expected first upsert to create")
	}

	created, err = svc.Upsert(ctx, database.Employee{EmpCode: "E100", FullName: "Asha R. Rao"})
	if err != nil {
		t.Fatalf("Upsert update failed: %v", err)
	}
	if created {
		t.Error("expected second upsert to update")
	}

	e, err := repo.GetEmployee(ctx, "E100")
	if err != nil {
		t.Fatalf("GetEmployee failed: %v", err)
	}
	if e.FullName != "Asha R. Rao" {
		t.Errorf("expected updated name, got %q", e.FullName)
	}
	n, err := repo.CountEmployees(ctx)
	if err != nil {
		t.Fatalf("CountEmployees failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 employee, got %d", n)
	}

	if _, err := svc.Upsert(ctx, database.Employee{EmpCode: "E101"}); !errors.Is(err, ErrMissingName) {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
	if _, err := svc.Upsert(ctx, database.Employee{EmpCode: "../x", FullName: "X"}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected ErrInvalidCode, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, e := range []database.Employee{
		{EmpCode: "E100", FullName: "Asha Rao"},
		{EmpCode: "E200", FullName: "Vikram Shah"},
		{EmpCode: "X300", FullName: "José Ramírez"},
	} {
		if _, err := svc.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	tests := []struct {
		q    string
		want []string
	}{
		{"", []string{"E100", "X300", "E200"}},
		{"e1", []string{"E100"}},
		{"ram", []string{"X300", "E200"}},
		{"rao", []string{"E100"}},
		{"jose ramirez", []string{"X300"}},
		{"ramírez", []string{"X300"}},
		{"shah asha", nil},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			got, err := svc.Search(ctx, tt.q)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %d results", tt.want, len(got))
			}
			for i, code := range tt.want {
				if got[i].EmpCode != code {
					t.Errorf("result %d: expected %s, got %s", i, code, got[i].EmpCode)
				}
			}
		})
	}
}

func TestSaveReferenceImage(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, database.Employee{EmpCode: "E100", FullName: "Asha Rao"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := os.MkdirAll(svc.imageDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(svc.imageDir, "E100.png")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := svc.SaveReferenceImage(ctx, "E100", pngBytes(t, 40, 30))
	if err != nil {
		t.Fatalf("SaveReferenceImage failed: %v", err)
	}
	if filepath.Base(path) != "E100.jpg" {
		t.Errorf("expected E100.jpg, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored image: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("stored reference is not a JPEG")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected other reference files for the code to be removed")
	}

	entries, err := os.ReadDir(svc.imageDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the reference file, got %d entries", len(entries))
	}

	e, err := repo.GetEmployee(ctx, "E100")
	if err != nil {
		t.Fatalf("GetEmployee failed: %v", err)
	}
	if e.ProfileImageLocal != path {
		t.Errorf("expected local image %s, got %s", path, e.ProfileImageLocal)
	}

	// A later profile sync without a local path keeps the stored one.
	if _, err := svc.Upsert(ctx, database.Employee{EmpCode: "E100", FullName: "Asha Rao"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	e, _ = repo.GetEmployee(ctx, "E100")
	if e.ProfileImageLocal != path {
		t.Errorf("expected local image to survive upsert, got %q", e.ProfileImageLocal)
	}

	if _, err := svc.SaveReferenceImage(ctx, "E100", []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
	if _, err := svc.SaveReferenceImage(ctx, "../E100", pngBytes(t, 4, 4)); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected ErrInvalidCode, got %v", err)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "E100",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("hr-service-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestSessions(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	exp := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	if _, err := svc.Session(ctx); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before login, got %v", err)
	}

	sess, err := svc.SaveSession(ctx, signedToken(t, exp), "E100", "Asha Rao", "asha@example.com")
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if sess.ExpiresAt == nil || !sess.ExpiresAt.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, sess.ExpiresAt)
	}

	// Opaque tokens replace the previous session and have no expiry.
	sess, err = svc.SaveSession(ctx, "opaque-token", "E200", "Vikram Shah", "")
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if sess.ExpiresAt != nil || sess.EmployeeID != "E200" {
		t.Errorf("unexpected session %+v", sess)
	}

	if _, err := svc.SaveSession(ctx, signedToken(t, exp), "E100", "Asha Rao", ""); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	svc.now = func() time.Time { return exp.Add(time.Minute) }
	if _, err := svc.Session(ctx); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected expired session to read as not found, got %v", err)
	}

	if err := svc.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	svc.now = time.Now
	if _, err := svc.Session(ctx); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected no session after clear, got %v", err)
	}

	if _, err := svc.SaveSession(ctx, "  ", "", "", ""); err == nil {
		t.Error("expected error for empty token")
	}
	noStore := NewService(nil, nil, t.TempDir())
	if err := noStore.ClearSession(ctx); !errors.Is(err, ErrNoSessionStore) {
		t.Errorf("expected ErrNoSessionStore, got %v", err)
	}
}
