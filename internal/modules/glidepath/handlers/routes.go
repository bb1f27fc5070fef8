package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all glidepath routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/glidepath", func(r chi.Router) {
		r.Get("/rulesets", h.HandleListRuleSets)
		r.Get("/rulesets/{name}", h.HandleGetBands)
		r.Put("/rulesets/{name}", h.HandleReplaceRuleSet)
	})
}
