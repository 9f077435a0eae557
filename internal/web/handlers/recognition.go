package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/terminal"
)

// RecognitionHandler feeds camera frames to the detection pipeline
type RecognitionHandler struct {
	pipeline *terminal.Pipeline
}

// NewRecognitionHandler creates a new recognition handler
func NewRecognitionHandler(p *terminal.Pipeline) *RecognitionHandler {
	return &RecognitionHandler{pipeline: p}
}

// SubmitFrame stores the frame for the next detection tick
func (h *RecognitionHandler) SubmitFrame(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r, constants.MaxFrameSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty frame")
		return
	}
	h.pipeline.Frames().Put(data)
	respondJSON(w, http.StatusAccepted, map[string]bool{"accepted": true, "busy": h.pipeline.Busy()})
}

// Recognize runs one detection synchronously
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r, constants.MaxFrameSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := h.pipeline.Detect(r.Context(), data)
	status := http.StatusOK
	switch rec.Status {
	case terminal.StatusBusy:
		status = http.StatusTooManyRequests
	case terminal.StatusDetectionError:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, rec)
}

// Last returns the most recent recognition
func (h *RecognitionHandler) Last(w http.ResponseWriter, r *http.Request) {
	rec := h.pipeline.Last()
	if rec == nil {
		respondError(w, http.StatusNotFound, "no recognition yet")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
