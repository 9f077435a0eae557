package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/directory"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/terminal"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

// fakeIndex accepts frames starting with 'a' as E100.
type fakeIndex struct {
	mu       sync.Mutex
	rebuilds int
}

func (f *fakeIndex) MatchImage(_ context.Context, frame []byte) identity.MatchResult {
	if frame[0] == 'a' {
		return identity.MatchResult{Status: identity.MatchAccepted, EmpCode: "E100", Nearest: "E100", Similarity: 0.9, Threshold: constants.MatchThreshold}
	}
	return identity.MatchResult{Status: identity.MatchNoFace, Threshold: constants.MatchThreshold}
}

func (f *fakeIndex) Stale() (bool, error) { return false, nil }

func (f *fakeIndex) Rebuild(context.Context) (identity.BuildStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	return identity.BuildStats{Images: 1, Indexed: 1}, nil
}

func (f *fakeIndex) Info() identity.Info {
	return identity.Info{Faces: 1, Codes: []string{"E100"}, Threshold: constants.MatchThreshold, ImageDir: "/srv/faces"}
}

type testEnv struct {
	machine   *attendance.Machine
	directory *directory.Service
	pipeline  *terminal.Pipeline
	index     *fakeIndex
	imageDir  string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	pool, err := sqlite.Initialize(&config.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "employees.db"),
		MaxOpenConns:  4,
		BusyTimeoutMs: 5000,
	}, ist)
	if err != nil {
		t.Fatalf("Failed to initialize pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	employees := sqlite.NewEmployeeRepository(pool)
	if err := employees.InsertEmployee(context.Background(), database.Employee{EmpCode: "E100", FullName: "Asha Rao"}); err != nil {
		t.Fatalf("insert employee: %v", err)
	}

	clock := attendance.NewClock(ist, func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, ist) })
	machine := attendance.NewMachine(sqlite.NewAttendanceRepository(pool), clock)
	imageDir := t.TempDir()
	idx := &fakeIndex{}

	return &testEnv{
		machine:   machine,
		directory: directory.NewService(employees, sqlite.NewSessionRepository(pool), imageDir),
		pipeline:  terminal.NewPipeline(idx, employees, machine, nil),
		index:     idx,
		imageDir:  imageDir,
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.Set(x, y, color.Gray{Y: 100})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
