package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

// IndexService is the part of the identity index the API needs
type IndexService interface {
	Info() identity.Info
	Rebuild(ctx context.Context) (identity.BuildStats, error)
}

// IndexHandler reports on and rebuilds the identity index
type IndexHandler struct {
	index IndexService
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(index IndexService) *IndexHandler {
	return &IndexHandler{index: index}
}

// Get returns the current snapshot description
func (h *IndexHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.index.Info())
}

// Rebuild rescans the reference images and publishes a new snapshot
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Rebuild(r.Context())
	if errors.Is(err, identity.ErrImageDirMissing) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		log.Printf("index rebuild failed: %v", err)
		respondError(w, http.StatusInternalServerError, "index rebuild failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stats": stats, "index": h.index.Info()})
}
