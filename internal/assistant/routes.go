package assistant

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/", h.UpdateSession)
			r.Delete("/", h.DeleteSession)
			r.Get("/history", h.History)
			r.Post("/messages", h.SendMessage)
			r.Post("/operations/{opID}/confirm", h.ConfirmOperation)
			r.Get("/events", h.Events)
		})
	})

	r.Post("/references/activate", h.ActivateReference)

	r.Route("/odoo", func(r chi.Router) {
		r.Get("/models", h.ListModels)
		r.Get("/schema/{model}", h.ModelSchema)
		r.Get("/records/{model}", h.ListRecords)
	})
}
