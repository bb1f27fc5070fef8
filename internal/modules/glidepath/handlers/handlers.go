// Package handlers provides HTTP handlers for glidepath rulesets.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/glidepath/internal/modules/glidepath"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles glidepath HTTP requests
type Handler struct {
	repo *glidepath.Repository
	log  zerolog.Logger
}

// NewHandler creates a new glidepath handler
func NewHandler(repo *glidepath.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "glidepath").Logger(),
	}
}

// HandleListRuleSets handles GET /api/glidepath/rulesets
func (h *Handler) HandleListRuleSets(w http.ResponseWriter, r *http.Request) {
	rulesets, err := h.repo.GetRuleSets()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rulesets")
		http.Error(w, "Failed to list rulesets", http.StatusInternalServerError)
		return
	}
	if rulesets == nil {
		rulesets = []glidepath.RuleSet{}
	}

	h.writeJSON(w, http.StatusOK, rulesets)
}

// HandleGetBands handles GET /api/glidepath/rulesets/{name}
func (h *Handler) HandleGetBands(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ruleset, err := h.repo.GetRuleSetByName(name)
	if err != nil {
		h.log.Error().Err(err).Str("ruleset", name).Msg("Failed to get ruleset")
		http.Error(w, "Failed to get ruleset", http.StatusInternalServerError)
		return
	}
	if ruleset == nil {
		http.Error(w, "Ruleset not found", http.StatusNotFound)
		return
	}

	bands, err := h.repo.GetBands(ruleset.ID)
	if err != nil {
		h.log.Error().Err(err).Str("ruleset", name).Msg("Failed to get bands")
		http.Error(w, "Failed to get bands", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ruleset": ruleset,
		"bands":   bands,
	})
}

// HandleReplaceRuleSet handles PUT /api/glidepath/rulesets/{name}. The body is
// the full band list; validation failure leaves the stored ruleset untouched.
func (h *Handler) HandleReplaceRuleSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var bands []glidepath.BandInput
	if err := json.NewDecoder(r.Body).Decode(&bands); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ruleset, err := h.repo.ReplaceRuleSet(name, bands)
	if err != nil {
		h.log.Warn().Err(err).Str("ruleset", name).Msg("Ruleset import rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, ruleset)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
