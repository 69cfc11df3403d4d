package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/search"
)

// ListLinks handles GET /api/collections/{collection}/links.
//
//	@Summary		List the collection's links as serialized definitions
//	@Tags			links
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			figures		query		bool	false	"Include resource figures"
//	@Success		200			{object}	LinkListResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	withFigures := r.URL.Query().Get("figures") == "true"
	defs, err := h.svc.Links(r.Context(), chi.URLParam(r, "collection"), withFigures)
	if err != nil {
		writeError(w, "list links", err)
		return
	}
	if defs == nil {
		defs = []search.Definition{}
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: defs})
}

// CreateLink handles POST /api/collections/{collection}/links.
//
//	@Summary		Create a link from a definition
//	@Description	The body is a link definition: the target view id plus field and analyzer metadata. Existing documents are indexed by a background job.
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			collection	path		string				true	"Collection name"
//	@Param			body		body		object				true	"Link definition"
//	@Success		201			{object}	CreateLinkResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var def search.Definition
	if !decodeBody(w, r, maxBodyBytes, &def) {
		return
	}
	l, jobID, err := h.svc.CreateLink(r.Context(), chi.URLParam(r, "collection"), def)
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateLinkResponse{Link: l.ToDefinition(false), Job: jobID})
}

// DropLink handles DELETE /api/collections/{collection}/links/{id}.
//
//	@Summary		Drop a link and its view entries
//	@Tags			links
//	@Param			collection	path	string	true	"Collection name"
//	@Param			id			path	int		true	"Link id"
//	@Success		204			"Link dropped"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/links/{id} [delete]
func (h *Handler) DropLink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "drop link", apperr.ErrBadParameter)
		return
	}
	if err := h.svc.DropLink(r.Context(), chi.URLParam(r, "collection"), id); err != nil {
		writeError(w, "drop link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
