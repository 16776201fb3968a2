package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/service"
)

// PaneRegistry is the view manager exposed to the UI.
type PaneRegistry interface {
	Panes() []models.Pane
	Focused() string
	Close(id string) error
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events receives the opened events posted by the UI; panes may be nil
// when no view manager runs. sseHandler, if non-nil, is mounted at
// GET /events inside the auth group.
func NewRouter(svc *service.Service, panes PaneRegistry, events chan<- models.Event, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, panes, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sidecars.
	r.Post("/sidecars", h.CreateSidecar)
	r.Post("/sidecars/bulk", h.BulkCreate)
	r.Get("/sidecars/*", h.Lookup)

	// UI events and panes.
	r.Post("/open", h.Open)
	r.Get("/panes", h.ListPanes)
	r.Delete("/panes/{id}", h.ClosePane)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	r.Get("/activity", h.Activity)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
