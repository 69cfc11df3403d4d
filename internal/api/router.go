package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skarde/beacon/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *engine.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Collections.
	r.Get("/collections", h.ListCollections)
	r.Post("/collections", h.CreateCollection)
	r.Delete("/collections/{collection}", h.DropCollection)

	// Documents.
	r.Get("/collections/{collection}/documents", h.ListDocuments)
	r.Post("/collections/{collection}/documents", h.InsertDocument)
	r.Get("/collections/{collection}/documents/{rid}", h.GetDocument)
	r.Put("/collections/{collection}/documents/{rid}", h.UpdateDocument)
	r.Delete("/collections/{collection}/documents/{rid}", h.RemoveDocument)
	r.Post("/collections/{collection}/import", h.Import)

	// Links.
	r.Get("/collections/{collection}/links", h.ListLinks)
	r.Post("/collections/{collection}/links", h.CreateLink)
	r.Delete("/collections/{collection}/links/{id}", h.DropLink)

	// Views and search.
	r.Get("/views", h.ListViews)
	r.Post("/views", h.CreateView)
	r.Delete("/views/{view}", h.DropView)
	r.Get("/views/{view}/search", h.Search)

	// Background jobs.
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
