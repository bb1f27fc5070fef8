package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all fund catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/funds", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Put("/", h.HandleUpsert)
		r.Get("/{ticker}", h.HandleGet)
	})
}
