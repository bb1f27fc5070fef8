// Package handlers provides HTTP handlers for return-assumption overrides.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/glidepath/internal/modules/projection"
	"github.com/rs/zerolog"
)

// Handler handles assumption override HTTP requests
type Handler struct {
	repo *projection.AssumptionsRepository
	log  zerolog.Logger
}

// NewHandler creates a new assumptions handler
func NewHandler(repo *projection.AssumptionsRepository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "assumptions").Logger(),
	}
}

// AssumptionEntry is one category override row.
type AssumptionEntry struct {
	AssetClass string  `json:"asset_class"`
	Category   string  `json:"category"`
	MeanReturn float64 `json:"mean_return"`
	StdDev     float64 `json:"std_dev"`
}

// HandleList handles GET /api/assumptions
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.repo.GetOverrides()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assumptions")
		http.Error(w, "Failed to list assumptions", http.StatusInternalServerError)
		return
	}

	entries := make([]AssumptionEntry, 0, len(overrides))
	for key, a := range overrides {
		entries = append(entries, AssumptionEntry{
			AssetClass: key.AssetClass,
			Category:   key.Category,
			MeanReturn: a.MeanReturn,
			StdDev:     a.StdDev,
		})
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// HandleUpsert handles PUT /api/assumptions
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var entries []AssumptionEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for _, entry := range entries {
		if entry.AssetClass == "" || entry.Category == "" {
			http.Error(w, "asset_class and category are required", http.StatusBadRequest)
			return
		}
		err := h.repo.Upsert(entry.AssetClass, entry.Category, projection.Assumption{
			MeanReturn: entry.MeanReturn,
			StdDev:     entry.StdDev,
		})
		if err != nil {
			h.log.Warn().Err(err).Str("class", entry.AssetClass).Str("category", entry.Category).
				Msg("Assumption upsert rejected")
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
