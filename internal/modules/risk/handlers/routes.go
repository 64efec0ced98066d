package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/profiles", h.HandleGetProfiles)
		r.Get("/exposure", h.HandleGetExposure)
		r.Post("/validate", h.HandleValidate)
	})
}
