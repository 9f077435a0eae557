package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler exposes the ledger
type AttendanceHandler struct {
	machine *attendance.Machine
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(m *attendance.Machine) *AttendanceHandler {
	return &AttendanceHandler{machine: m}
}

// StatusResponse is the day's state plus the action the next event takes
type StatusResponse struct {
	EmpCode    string                `json:"emp_code"`
	Date       string                `json:"date"`
	NextAction attendance.NextAction `json:"next_action"`
	attendance.Status
}

// Status returns the day's state for ?emp_code=&date=
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("emp_code"))
	if code == "" {
		respondError(w, http.StatusBadRequest, "emp_code is required")
		return
	}
	day, err := h.machine.Clock().NormalizeDay(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.machine.Status(r.Context(), code, day)
	if err != nil {
		log.Printf("attendance status for %s failed: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to read attendance")
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{EmpCode: code, Date: day, NextAction: st.Next(), Status: st})
}

// EventRequest is a manually entered attendance event
type EventRequest struct {
	EmpCode string `json:"emp_code"`
	EmpBID  string `json:"emp_b_id"`
	EmpName string `json:"emp_full_name"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// Record processes a manual attendance event
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	res := h.machine.Process(r.Context(), attendance.Event{
		EmpCode: req.EmpCode,
		EmpBID:  req.EmpBID,
		EmpName: req.EmpName,
		Date:    req.Date,
		Time:    req.Time,
		Mode:    database.ModeManual,
	})

	status := http.StatusOK
	switch res.Outcome {
	case attendance.OutcomeCheckedIn:
		status = http.StatusCreated
	case attendance.OutcomeInvalidInput:
		status = http.StatusBadRequest
	case attendance.OutcomeDuplicate:
		status = http.StatusConflict
	case attendance.OutcomeNoRecord:
		status = http.StatusNotFound
	case attendance.OutcomeStoreError:
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, res)
}

// Summary returns the day's totals for ?date=
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.machine.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if errors.Is(err, attendance.ErrInvalidDate) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("attendance summary failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// Logs lists records filtered by ?date=, ?emp_code=, ?status= and ?limit=
func (h *AttendanceHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", constants.DefaultLogLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(limit, constants.MaxLogLimit)

	status := database.AttendanceStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "status must be CHECKED_IN or CHECKED_OUT")
		return
	}

	recs, err := h.machine.Logs(r.Context(), database.LogFilter{
		Date:    q.Get("date"),
		EmpCode: strings.TrimSpace(q.Get("emp_code")),
		Status:  status,
		Limit:   limit,
	})
	if errors.Is(err, attendance.ErrInvalidDate) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("attendance logs failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(recs), "records": recs})
}

// Integrity reports (employee, day) pairs holding more than one record
func (h *AttendanceHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	groups, err := h.machine.IntegrityReport(r.Context())
	if err != nil {
		log.Printf("integrity check failed: %v", err)
		respondError(w, http.StatusInternalServerError, "integrity check failed")
		return
	}
	if groups == nil {
		groups = []database.DuplicateGroup{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": len(groups) == 0, "duplicates": groups})
}
