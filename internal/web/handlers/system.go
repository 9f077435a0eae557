package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/terminal"
)

// SystemHandler reports terminal state for the operator UI
type SystemHandler struct {
	config   *config.Config
	index    IndexService
	pipeline *terminal.Pipeline
	clock    *attendance.Clock
	version  string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(cfg *config.Config, index IndexService, p *terminal.Pipeline, clock *attendance.Clock, version string) *SystemHandler {
	return &SystemHandler{config: cfg, index: index, pipeline: p, clock: clock, version: version}
}

// SystemResponse describes the running terminal
type SystemResponse struct {
	Terminal        string   `json:"terminal"`
	Version         string   `json:"version"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Timezone        string   `json:"timezone"`
	Threshold       float64  `json:"threshold"`
	Faces           int      `json:"faces"`
	Codes           []string `json:"codes"`
	ImageDir        string   `json:"image_dir"`
	LivenessEnabled bool     `json:"liveness_enabled"`
	DetectionBusy   bool     `json:"detection_busy"`
}

// Get returns the system info
func (h *SystemHandler) Get(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	info := h.index.Info()
	respondJSON(w, http.StatusOK, SystemResponse{
		Terminal:        h.config.Terminal.Name,
		Version:         h.version,
		Date:            now.Format(database.DateLayout),
		Time:            now.Format(database.ClockLayout),
		Timezone:        h.clock.Location().String(),
		Threshold:       info.Threshold,
		Faces:           info.Faces,
		Codes:           info.Codes,
		ImageDir:        info.ImageDir,
		LivenessEnabled: h.pipeline.LivenessEnabled(),
		DetectionBusy:   h.pipeline.Busy(),
	})
}
