package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skarde/beacon/internal/engine"
)

// Handler holds API route handlers.
type Handler struct {
	svc *engine.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *engine.Service) *Handler {
	return &Handler{svc: svc}
}

// maxBodyBytes caps request bodies; imports can be large, single
// documents cannot.
const (
	maxBodyBytes       = 1 << 20
	maxImportBodyBytes = 64 << 20
)

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListCollections handles GET /api/collections.
//
//	@Summary		List collections with document and link counts
//	@Tags			collections
//	@Produce		json
//	@Success		200	{object}	CollectionListResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Collections(r.Context())
	if err != nil {
		writeError(w, "list collections", err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: infos})
}

// CreateCollection handles POST /api/collections.
//
//	@Summary		Create a collection
//	@Tags			collections
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCollectionRequest	true	"Collection to create"
//	@Success		201		{object}	CollectionInfo
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections [post]
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if !decodeBody(w, r, maxBodyBytes, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	c, err := h.svc.CreateCollection(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, CollectionInfo{ID: c.ID(), GUID: c.GUID(), Name: c.Name()})
}

// DropCollection handles DELETE /api/collections/{collection}.
//
//	@Summary		Drop a collection, its documents, and its links
//	@Tags			collections
//	@Param			collection	path	string	true	"Collection name"
//	@Success		204			"Collection dropped"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection} [delete]
func (h *Handler) DropCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	if err := h.svc.DropCollection(r.Context(), name); err != nil {
		writeError(w, "drop collection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListViews handles GET /api/views.
//
//	@Summary		List views with link counts and memory figures
//	@Tags			views
//	@Produce		json
//	@Success		200	{object}	ViewListResponse
//	@Security		BearerAuth
//	@Router			/views [get]
func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Views(r.Context())
	if err != nil {
		writeError(w, "list views", err)
		return
	}
	writeJSON(w, http.StatusOK, ViewListResponse{Views: infos})
}

// CreateView handles POST /api/views.
//
//	@Summary		Create a search view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateViewRequest	true	"View to create"
//	@Success		201		{object}	ViewInfo
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views [post]
func (h *Handler) CreateView(w http.ResponseWriter, r *http.Request) {
	var req CreateViewRequest
	if !decodeBody(w, r, maxBodyBytes, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	v, err := h.svc.CreateView(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create view", err)
		return
	}
	writeJSON(w, http.StatusCreated, ViewInfo{ID: v.ID(), GUID: v.GUID(), Name: v.Name()})
}

// DropView handles DELETE /api/views/{view}.
//
//	@Summary		Drop a view and every link bound to it
//	@Tags			views
//	@Param			view	path	string	true	"View name"
//	@Success		204		"View dropped"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{view} [delete]
func (h *Handler) DropView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "view")
	if err := h.svc.DropView(r.Context(), name); err != nil {
		writeError(w, "drop view", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/views/{view}/search.
//
//	@Summary		Full-text search within one view
//	@Tags			search
//	@Produce		json
//	@Param			view	path		string	true	"View name"
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{view}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), chi.URLParam(r, "view"), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetJob handles GET /api/jobs/{id}.
//
//	@Summary		Get the state of a background job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job id"
//	@Success		200	{object}	Job
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.JobState(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
//
//	@Summary		List background jobs, oldest first
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{object}	JobListResponse
//	@Security		BearerAuth
//	@Router			/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.Jobs()
	if jobs == nil {
		jobs = []Job{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}
