package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)

			r.Get("/items", h.HandleGetItems)
			r.Put("/items", h.HandleReplaceItems)

			r.Get("/analysis", h.HandleAnalysis)
			r.Post("/rebalance", h.HandleRebalance)
			r.Post("/projection", h.HandleProjection)
		})
	})
}
