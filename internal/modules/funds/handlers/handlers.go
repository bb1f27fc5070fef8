// Package handlers provides HTTP handlers for the fund catalog.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/glidepath/internal/modules/funds"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles fund catalog HTTP requests
type Handler struct {
	repo *funds.Repository
	log  zerolog.Logger
}

// NewHandler creates a new funds handler
func NewHandler(repo *funds.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "funds").Logger(),
	}
}

// HandleList handles GET /api/funds
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list funds")
		http.Error(w, "Failed to list funds", http.StatusInternalServerError)
		return
	}
	if all == nil {
		all = []funds.Fund{}
	}

	h.writeJSON(w, http.StatusOK, all)
}

// HandleGet handles GET /api/funds/{ticker}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	fund, err := h.repo.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get fund")
		http.Error(w, "Failed to get fund", http.StatusInternalServerError)
		return
	}
	if fund == nil {
		http.Error(w, "Fund not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, fund)
}

// HandleUpsert handles PUT /api/funds. The body is a list so catalog imports
// land in one request.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var inputs []funds.FundInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for _, input := range inputs {
		if err := h.repo.Upsert(input); err != nil {
			h.log.Warn().Err(err).Str("ticker", input.Ticker).Msg("Fund upsert rejected")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
