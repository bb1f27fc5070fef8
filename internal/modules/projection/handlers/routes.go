package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all assumption routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assumptions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Put("/", h.HandleUpsert)
	})
}
