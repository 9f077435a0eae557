package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/directory"
)

// SessionHandler manages the stored HR service login
type SessionHandler struct {
	dir *directory.Service
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(dir *directory.Service) *SessionHandler {
	return &SessionHandler{dir: dir}
}

// SaveSessionRequest is the HR login handed over by the UI
type SaveSessionRequest struct {
	Token      string `json:"token"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// Get returns the active session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.dir.Session(r.Context())
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}
	if err != nil {
		log.Printf("load session failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Save replaces the active session
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	sess, err := h.dir.SaveSession(r.Context(), req.Token, req.EmployeeID, req.Name, req.Email)
	if err != nil {
		log.Printf("save session failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Clear removes the active session
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.ClearSession(r.Context()); err != nil {
		log.Printf("clear session failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
