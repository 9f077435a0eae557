package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/backup"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/terminal"
)

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}
}

func TestAttendanceHandler_RecordAndStatus(t *testing.T) {
	env := setupEnv(t)
	h := NewAttendanceHandler(env.machine)

	status := func() StatusResponse {
		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/status?emp_code=E100&date=01-05-2024", nil))
		assertStatusCode(t, rec, http.StatusOK)
		var st StatusResponse
		parseJSONResponse(t, rec, &st)
		return st
	}

	if st := status(); st.Exists || !st.CanCheckIn || st.NextAction != attendance.NextCheckIn {
		t.Errorf("expected a fresh day, got %+v", st)
	}

	rec := httptest.NewRecorder()
	h.Record(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", EventRequest{EmpCode: "E100", Time: "9:00 am"}))
	assertStatusCode(t, rec, http.StatusCreated)
	var res attendance.Result
	parseJSONResponse(t, rec, &res)
	if res.Action != attendance.ActionCheckedIn || res.Time != "09:00:00" || res.EmpName != "E100" {
		t.Errorf("unexpected check-in result %+v", res)
	}

	if st := status(); st.NextAction != attendance.NextCheckOut {
		t.Errorf("expected CHECKOUT next, got %s", st.NextAction)
	}

	rec = httptest.NewRecorder()
	h.Record(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", EventRequest{EmpCode: "E100", Time: "18:00"}))
	assertStatusCode(t, rec, http.StatusOK)
	parseJSONResponse(t, rec, &res)
	if res.Action != attendance.ActionCheckedOutUpdated {
		t.Errorf("expected checkout, got %s", res.Action)
	}

	st := status()
	if st.NextAction != attendance.NextCompleted || st.Record == nil || st.Record.Mode != database.ModeManual {
		t.Errorf("expected a completed manual record, got %+v", st)
	}
}

func TestAttendanceHandler_BadRequests(t *testing.T) {
	env := setupEnv(t)
	h := NewAttendanceHandler(env.machine)

	tests := []struct {
		name    string
		call    func(w http.ResponseWriter)
		wantErr string
	}{
		{"status without code", func(w http.ResponseWriter) {
			h.Status(w, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/status", nil))
		}, "emp_code is required"},
		{"invalid body", func(w http.ResponseWriter) {
			h.Record(w, httptest.NewRequest(http.MethodPost, "/api/v1/attendance", bytes.NewBufferString("{")))
		}, errInvalidRequestBody},
		{"logs with unknown status", func(w http.ResponseWriter) {
			h.Logs(w, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/logs?status=LATE", nil))
		}, "status must be CHECKED_IN or CHECKED_OUT"},
		{"logs with bad limit", func(w http.ResponseWriter) {
			h.Logs(w, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/logs?limit=-3", nil))
		}, "limit must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(rec)
			assertStatusCode(t, rec, http.StatusBadRequest)
			assertJSONError(t, rec, tt.wantErr)
		})
	}

	t.Run("invalid event", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Record(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", EventRequest{EmpCode: " "}))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("summary with bad date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/summary?date=someday", nil))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})
}

func TestAttendanceHandler_Reports(t *testing.T) {
	env := setupEnv(t)
	h := NewAttendanceHandler(env.machine)
	ctx := context.Background()

	env.machine.Process(ctx, attendance.Event{EmpCode: "E100"})
	env.machine.Process(ctx, attendance.Event{EmpCode: "E200", Time: "09:30"})
	env.machine.Process(ctx, attendance.Event{EmpCode: "E200", Time: "17:30"})

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/summary", nil))
	assertStatusCode(t, rec, http.StatusOK)
	var sum database.DaySummary
	parseJSONResponse(t, rec, &sum)
	if sum.Date != "2024-05-01" || sum.TotalEmployees != 2 || sum.Completed != 1 || sum.CheckedInOnly != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}

	rec = httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/logs?status=checked_out", nil))
	assertStatusCode(t, rec, http.StatusOK)
	var logs struct {
		Count   int                         `json:"count"`
		Records []database.AttendanceRecord `json:"records"`
	}
	parseJSONResponse(t, rec, &logs)
	if logs.Count != 1 || logs.Records[0].EmpCode != "E200" {
		t.Errorf("expected only E200, got %+v", logs)
	}

	rec = httptest.NewRecorder()
	h.Integrity(rec, httptest.NewRequest(http.MethodGet, "/api/v1/attendance/integrity", nil))
	assertStatusCode(t, rec, http.StatusOK)
	var integrity struct {
		OK         bool  `json:"ok"`
		Duplicates []any `json:"duplicates"`
	}
	parseJSONResponse(t, rec, &integrity)
	if !integrity.OK || integrity.Duplicates == nil || len(integrity.Duplicates) != 0 {
		t.Errorf("expected a clean ledger, got %+v", integrity)
	}
}

func TestEmployeesHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewEmployeesHandler(env.directory)

	t.Run("create then update", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := jsonRequest(t, http.MethodPut, "/api/v1/employees/E200", UpsertRequest{FullName: "Vikram Shah", Email: "vs@example.com"})
		h.Upsert(rec, requestWithChiParams(req, map[string]string{"code": "E200"}))
		assertStatusCode(t, rec, http.StatusCreated)

		rec = httptest.NewRecorder()
		req = jsonRequest(t, http.MethodPut, "/api/v1/employees/E200", UpsertRequest{FullName: "Vikram K. Shah"})
		h.Upsert(rec, requestWithChiParams(req, map[string]string{"code": "E200"}))
		assertStatusCode(t, rec, http.StatusOK)
		var emp database.Employee
		parseJSONResponse(t, rec, &emp)
		if emp.FullName != "Vikram K. Shah" {
			t.Errorf("expected updated name, got %q", emp.FullName)
		}
	})

	t.Run("validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := jsonRequest(t, http.MethodPut, "/api/v1/employees/E300", UpsertRequest{})
		h.Upsert(rec, requestWithChiParams(req, map[string]string{"code": "E300"}))
		assertStatusCode(t, rec, http.StatusBadRequest)
		assertJSONError(t, rec, "employee full name is required")

		rec = httptest.NewRecorder()
		req = jsonRequest(t, http.MethodPut, "/api/v1/employees/x", UpsertRequest{FullName: "X"})
		h.Upsert(rec, requestWithChiParams(req, map[string]string{"code": "../x"}))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("get and search", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Get(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/employees/E999", nil), map[string]string{"code": "E999"}))
		assertStatusCode(t, rec, http.StatusNotFound)

		rec = httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/employees?q=asha", nil))
		assertStatusCode(t, rec, http.StatusOK)
		var out struct {
			Count     int                 `json:"count"`
			Employees []database.Employee `json:"employees"`
		}
		parseJSONResponse(t, rec, &out)
		if out.Count != 1 || out.Employees[0].EmpCode != "E100" {
			t.Errorf("expected E100, got %+v", out)
		}
	})

	t.Run("photo", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/employees/E100/photo", bytes.NewReader(pngBytes(t)))
		req.Header.Set("Content-Type", "image/png")
		h.UploadPhoto(rec, requestWithChiParams(req, map[string]string{"code": "E100"}))
		assertStatusCode(t, rec, http.StatusOK)

		if _, err := os.Stat(filepath.Join(env.imageDir, "E100.jpg")); err != nil {
			t.Errorf("expected reference photo on disk: %v", err)
		}

		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPut, "/api/v1/employees/E100/photo", bytes.NewBufferString("not an image"))
		h.UploadPhoto(rec, requestWithChiParams(req, map[string]string{"code": "E100"}))
		assertStatusCode(t, rec, http.StatusBadRequest)
	})
}

func TestRecognitionHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewRecognitionHandler(env.pipeline)

	rec := httptest.NewRecorder()
	h.Last(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recognition/last", nil))
	assertStatusCode(t, rec, http.StatusNotFound)

	rec = httptest.NewRecorder()
	h.Recognize(rec, httptest.NewRequest(http.MethodPost, "/api/v1/recognize", bytes.NewBufferString("a-frame")))
	assertStatusCode(t, rec, http.StatusOK)
	var got terminal.Recognition
	parseJSONResponse(t, rec, &got)
	if !got.Success || got.Action != attendance.ActionCheckedIn || got.EmpCode != "E100" {
		t.Errorf("unexpected recognition %+v", got)
	}

	rec = httptest.NewRecorder()
	h.Last(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recognition/last", nil))
	assertStatusCode(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	h.SubmitFrame(rec, httptest.NewRequest(http.MethodPost, "/api/v1/frames", nil))
	assertStatusCode(t, rec, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	h.SubmitFrame(rec, httptest.NewRequest(http.MethodPost, "/api/v1/frames", bytes.NewBufferString("b-frame")))
	assertStatusCode(t, rec, http.StatusAccepted)
	if string(env.pipeline.Frames().Take()) != "b-frame" {
		t.Error("expected the frame to be held for the detection loop")
	}
}

type fakeBackups struct {
	artifact *database.BackupArtifact
	days     int
}

func (f *fakeBackups) Status() backup.Status {
	return backup.Status{Mode: "interval", Destinations: []string{}, Uploads: []backup.UploadRecord{}}
}

func (f *fakeBackups) RunOnce(context.Context) *backup.CycleReport {
	return &backup.CycleReport{ID: "c1", Steps: []backup.StepReport{{Label: backup.LabelFull, Error: "disk full"}}}
}

func (f *fakeBackups) Window(label backup.Label) (int, error) {
	if label == backup.LabelDaily {
		return 1, nil
	}
	return 0, errors.New("unknown extract label")
}

func (f *fakeBackups) Extract(_ context.Context, _ backup.Label, days int) (*database.BackupArtifact, error) {
	f.days = days
	return f.artifact, nil
}

func TestBackupHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewBackupHandler(nil).Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backup/status", nil))
		assertStatusCode(t, rec, http.StatusServiceUnavailable)
	})

	fb := &fakeBackups{artifact: &database.BackupArtifact{Kind: database.ArtifactExtract, Label: "daily", Rows: 3, CreatedAt: time.Now()}}
	h := NewBackupHandler(fb)

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backup/run", nil))
	assertStatusCode(t, rec, http.StatusInternalServerError)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/extract/yearly", nil)
	h.Extract(rec, requestWithChiParams(req, map[string]string{"label": "yearly"}))
	assertStatusCode(t, rec, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/backup/extract/daily?days=3", nil)
	h.Extract(rec, requestWithChiParams(req, map[string]string{"label": "daily"}))
	assertStatusCode(t, rec, http.StatusCreated)
	if fb.days != 3 {
		t.Errorf("expected days override 3, got %d", fb.days)
	}

	fb.artifact = nil
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/backup/extract/daily", nil)
	h.Extract(rec, requestWithChiParams(req, map[string]string{"label": "daily"}))
	assertStatusCode(t, rec, http.StatusOK)
	if fb.days != 1 {
		t.Errorf("expected configured window 1, got %d", fb.days)
	}
}

func TestSessionHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewSessionHandler(env.directory)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusNotFound)

	rec = httptest.NewRecorder()
	h.Save(rec, jsonRequest(t, http.MethodPut, "/api/v1/session", SaveSessionRequest{Token: "opaque-token", EmployeeID: "HR1", Name: "Meera"}))
	assertStatusCode(t, rec, http.StatusOK)
	var sess database.Session
	parseJSONResponse(t, rec, &sess)
	if sess.EmployeeID != "HR1" || sess.ExpiresAt != nil {
		t.Errorf("unexpected session %+v", sess)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("opaque-token")) {
		t.Error("token must not be echoed back")
	}

	rec = httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusNoContent)

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestSystemAndIndexHandlers(t *testing.T) {
	env := setupEnv(t)
	cfg := &config.Config{Terminal: config.TerminalConfig{Name: "gate-1"}}

	rec := httptest.NewRecorder()
	NewSystemHandler(cfg, env.index, env.pipeline, env.machine.Clock(), "test").Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system", nil))
	assertStatusCode(t, rec, http.StatusOK)
	var sys SystemResponse
	parseJSONResponse(t, rec, &sys)
	if sys.Terminal != "gate-1" || sys.Date != "2024-05-01" || sys.Time != "09:00:00" || sys.Faces != 1 || sys.LivenessEnabled {
		t.Errorf("unexpected system info %+v", sys)
	}

	rec = httptest.NewRecorder()
	NewIndexHandler(env.index).Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	assertStatusCode(t, rec, http.StatusOK)
	if env.index.rebuilds != 1 {
		t.Errorf("expected one rebuild, got %d", env.index.rebuilds)
	}
}
