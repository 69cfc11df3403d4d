package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/store"
)

func documentRID(r *http.Request) (uint64, error) {
	rid, err := strconv.ParseUint(chi.URLParam(r, "rid"), 10, 64)
	if err != nil {
		return 0, apperr.ErrBadParameter
	}
	return rid, nil
}

func toDocumentResponse(row store.DocumentRow) DocumentResponse {
	return DocumentResponse{RID: row.RID, Checksum: row.Checksum, Document: json.RawMessage(row.Body)}
}

// InsertDocument handles POST /api/collections/{collection}/documents.
//
//	@Summary		Store a document and index it through the collection's links
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			body		body		object	true	"Document body (JSON object)"
//	@Success		201			{object}	InsertDocumentResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/documents [post]
func (h *Handler) InsertDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	rid, err := h.svc.InsertDocument(r.Context(), chi.URLParam(r, "collection"), body)
	if err != nil {
		writeError(w, "insert document", err)
		return
	}
	writeJSON(w, http.StatusCreated, InsertDocumentResponse{RID: rid})
}

// GetDocument handles GET /api/collections/{collection}/documents/{rid}.
//
//	@Summary		Get a single document by revision id
//	@Tags			documents
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			rid			path		int		true	"Revision id"
//	@Success		200			{object}	DocumentResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/documents/{rid} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	rid, err := documentRID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("rid must be an unsigned integer"))
		return
	}
	row, err := h.svc.GetDocument(r.Context(), chi.URLParam(r, "collection"), rid)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(*row))
}

// UpdateDocument handles PUT /api/collections/{collection}/documents/{rid}.
//
//	@Summary		Replace a document and re-index it
//	@Tags			documents
//	@Accept			json
//	@Param			collection	path	string	true	"Collection name"
//	@Param			rid			path	int		true	"Revision id"
//	@Param			body		body	object	true	"New document body (JSON object)"
//	@Success		204			"Document updated"
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/documents/{rid} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	rid, err := documentRID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("rid must be an unsigned integer"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if err := h.svc.UpdateDocument(r.Context(), chi.URLParam(r, "collection"), rid, body); err != nil {
		writeError(w, "update document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveDocument handles DELETE /api/collections/{collection}/documents/{rid}.
//
//	@Summary		Remove a document and its index entries
//	@Tags			documents
//	@Param			collection	path	string	true	"Collection name"
//	@Param			rid			path	int		true	"Revision id"
//	@Success		204			"Document removed"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/documents/{rid} [delete]
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	rid, err := documentRID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("rid must be an unsigned integer"))
		return
	}
	if err := h.svc.RemoveDocument(r.Context(), chi.URLParam(r, "collection"), rid); err != nil {
		writeError(w, "remove document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/collections/{collection}/documents.
//
//	@Summary		List documents in revision-id order
//	@Tags			documents
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			after		query		int		false	"Return documents with rid greater than this"
//	@Param			limit		query		int		false	"Page size"
//	@Success		200			{object}	DocumentListResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := h.svc.ListDocuments(r.Context(), chi.URLParam(r, "collection"), after, limit)
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	resp := DocumentListResponse{Documents: make([]DocumentResponse, 0, len(rows))}
	for _, row := range rows {
		resp.Documents = append(resp.Documents, toDocumentResponse(row))
	}
	if len(rows) == limit {
		resp.Next = rows[len(rows)-1].RID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Import handles POST /api/collections/{collection}/import.
//
//	@Summary		Queue a batch of documents for import
//	@Description	Accepts a JSON array of document objects. The import runs as a background job; poll /jobs/{id} for the outcome.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			body		body		[]object	true	"Documents to import"
//	@Success		202			{object}	JobResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{collection}/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var docs []json.RawMessage
	if !decodeBody(w, r, maxImportBodyBytes, &docs) {
		return
	}
	if len(docs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("import body must be a non-empty JSON array"))
		return
	}
	batch := make([][]byte, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, []byte(doc))
	}
	id, err := h.svc.EnqueueImport(chi.URLParam(r, "collection"), batch)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobResponse{Job: id})
}
