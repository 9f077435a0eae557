package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/backup"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// BackupService is the scheduler surface exposed over HTTP
type BackupService interface {
	Status() backup.Status
	RunOnce(ctx context.Context) *backup.CycleReport
	Window(label backup.Label) (int, error)
	Extract(ctx context.Context, label backup.Label, days int) (*database.BackupArtifact, error)
}

// BackupHandler exposes the backup scheduler
type BackupHandler struct {
	backups BackupService
}

// NewBackupHandler creates a new backup handler. A nil service answers 503.
func NewBackupHandler(b BackupService) *BackupHandler {
	return &BackupHandler{backups: b}
}

func (h *BackupHandler) available(w http.ResponseWriter) bool {
	if h.backups == nil {
		respondError(w, http.StatusServiceUnavailable, "backups are disabled")
		return false
	}
	return true
}

// Status returns the scheduler state and upload history
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	respondJSON(w, http.StatusOK, h.backups.Status())
}

// Run performs one cycle now and returns its report
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	report := h.backups.RunOnce(r.Context())
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, report)
}

// Extract writes a single daily, weekly or monthly extract. ?days=
// overrides the label's configured window.
func (h *BackupHandler) Extract(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	label := backup.Label(chi.URLParam(r, "label"))
	days, err := h.backups.Window(label)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days, err = queryInt(r, "days", days); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.backups.Extract(r.Context(), label, days)
	if errors.Is(err, context.Canceled) {
		respondError(w, http.StatusRequestTimeout, "request canceled")
		return
	}
	if err != nil {
		log.Printf("%s extract failed: %v", label, err)
		respondError(w, http.StatusInternalServerError, "extract failed")
		return
	}
	if a == nil {
		respondJSON(w, http.StatusOK, map[string]any{"label": label, "days": days, "skipped": "no attendance rows in window"})
		return
	}
	respondJSON(w, http.StatusCreated, a)
}
