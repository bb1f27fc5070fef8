// Package handlers provides HTTP handlers for position upload batches.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/glidepath/internal/modules/positions"
	"github.com/rs/zerolog"
)

// Handler handles upload HTTP requests
type Handler struct {
	repo *positions.Repository
	log  zerolog.Logger
}

// NewHandler creates a new uploads handler
func NewHandler(repo *positions.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "uploads").Logger(),
	}
}

// UploadRequest is one normalized position batch. Re-uploading the same
// (user, filename) replaces the prior batch atomically.
type UploadRequest struct {
	User      string                    `json:"user"`
	Filename  string                    `json:"filename"`
	Positions []positions.PositionInput `json:"positions"`
}

// HandleUpload handles POST /api/uploads
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.User == "" || req.Filename == "" {
		http.Error(w, "user and filename are required", http.StatusBadRequest)
		return
	}

	upload, err := h.repo.ReplaceBatch(req.User, req.Filename, req.Positions)
	if err != nil {
		h.log.Warn().Err(err).Str("user", req.User).Str("filename", req.Filename).Msg("Upload rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, upload)
}

// HandleList handles GET /api/uploads?user={user}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	uploads, err := h.repo.GetUploads(user)
	if err != nil {
		h.log.Error().Err(err).Str("user", user).Msg("Failed to list uploads")
		http.Error(w, "Failed to list uploads", http.StatusInternalServerError)
		return
	}
	if uploads == nil {
		uploads = []positions.Upload{}
	}

	h.writeJSON(w, http.StatusOK, uploads)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
