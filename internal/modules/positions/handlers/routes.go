package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all upload routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/uploads", func(r chi.Router) {
		r.Post("/", h.HandleUpload)
		r.Get("/", h.HandleList)
	})
}
