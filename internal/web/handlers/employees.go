package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/directory"
)

// EmployeesHandler serves the employee directory
type EmployeesHandler struct {
	dir *directory.Service
}

// NewEmployeesHandler creates a new employees handler
func NewEmployeesHandler(dir *directory.Service) *EmployeesHandler {
	return &EmployeesHandler{dir: dir}
}

// List returns all employees, or those matching ?q=
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	emps, err := h.dir.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("list employees failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(emps), "employees": emps})
}

// Get returns one employee
func (h *EmployeesHandler) Get(w http.ResponseWriter, r *http.Request) {
	emp, err := h.dir.Get(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "employee not found")
		return
	}
	if err != nil {
		log.Printf("get employee failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read employee")
		return
	}
	respondJSON(w, http.StatusOK, emp)
}

// UpsertRequest carries the mutable employee fields
type UpsertRequest struct {
	EmpBID       string `json:"emp_b_id"`
	FullName     string `json:"emp_full_name"`
	Phone        string `json:"emp_phone"`
	Email        string `json:"emp_email"`
	ProfilePhoto string `json:"emp_profile_photo"`
}

// Upsert creates or updates the employee named in the path
func (h *EmployeesHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	code := chi.URLParam(r, "code")
	created, err := h.dir.Upsert(r.Context(), database.Employee{
		EmpCode:      code,
		EmpBID:       req.EmpBID,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Email:        req.Email,
		ProfilePhoto: req.ProfilePhoto,
	})
	if errors.Is(err, directory.ErrInvalidCode) || errors.Is(err, directory.ErrMissingName) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("upsert employee %s failed: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to save employee")
		return
	}

	emp, err := h.dir.Get(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read employee")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, emp)
}

// UploadPhoto stores the employee's reference photo
func (h *EmployeesHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r, constants.MaxUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	code := chi.URLParam(r, "code")
	path, err := h.dir.SaveReferenceImage(r.Context(), code, data)
	switch {
	case errors.Is(err, directory.ErrInvalidCode), errors.Is(err, directory.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil && path == "":
		log.Printf("save reference photo for %s failed: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to store photo")
		return
	case err != nil:
		// photo is on disk, only the directory row lagged behind
		log.Printf("reference photo for %s stored, employee update failed: %v", sanitizeForLog(code), err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"emp_code": code, "path": path})
}
