package api

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/skarde/beacon/internal/engine"
	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/task"
)

// CreateCollectionRequest is the request body for creating a collection.
type CreateCollectionRequest struct {
	Name string `json:"name" example:"notes" validate:"required"`
}

// Validate validates the request.
func (r *CreateCollectionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

// CreateViewRequest is the request body for creating a view.
type CreateViewRequest struct {
	Name string `json:"name" example:"notes_search" validate:"required"`
}

// Validate validates the request.
func (r *CreateViewRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

// CollectionInfo describes one collection (aliased from the domain layer).
type CollectionInfo = engine.CollectionInfo

// ViewInfo describes one view (aliased from the domain layer).
type ViewInfo = engine.ViewInfo

// SearchResult is a single search hit (aliased from the domain layer).
type SearchResult = engine.SearchResult

// Job describes one background job (aliased from the domain layer).
type Job = task.Job

// CollectionListResponse wraps collection listings.
type CollectionListResponse struct {
	Collections []CollectionInfo `json:"collections" validate:"required"`
}

// ViewListResponse wraps view listings.
type ViewListResponse struct {
	Views []ViewInfo `json:"views" validate:"required"`
}

// LinkListResponse wraps the serialized link definitions of a collection.
type LinkListResponse struct {
	Links []search.Definition `json:"links" validate:"required"`
}

// CreateLinkResponse is returned after a link is created. The backfill
// of existing documents runs as a background job.
type CreateLinkResponse struct {
	Link search.Definition `json:"link" validate:"required"`
	Job  string            `json:"job,omitempty" example:"8b9c..."`
}

// DocumentResponse is a single stored document.
type DocumentResponse struct {
	RID      uint64          `json:"rid" example:"7" validate:"required"`
	Checksum string          `json:"checksum" example:"abc123..." validate:"required"`
	Document json.RawMessage `json:"document" validate:"required"`
}

// InsertDocumentResponse is returned after a document insert.
type InsertDocumentResponse struct {
	RID uint64 `json:"rid" example:"7" validate:"required"`
}

// DocumentListResponse wraps paginated document listings. Next carries
// the rid to pass as ?after= for the following page, zero when done.
type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents" validate:"required"`
	Next      uint64             `json:"next" example:"12"`
}

// JobResponse is returned when work is accepted for background execution.
type JobResponse struct {
	Job string `json:"job" example:"8b9c..." validate:"required"`
}

// JobListResponse wraps job listings.
type JobListResponse struct {
	Jobs []Job `json:"jobs" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
