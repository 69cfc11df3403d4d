// Package search implements the link protocol that binds stored
// collections to full-text search views: a Link routes a collection's
// document mutations into the view it is bound to, carries the
// metadata describing what gets indexed, and can be serialized to and
// rebuilt from a JSON definition.
package search

import (
	"github.com/skarde/beacon/internal/txn"
)

// Document is a JSON document as decoded by encoding/json.
type Document map[string]any

// BatchEntry pairs a document with its revision id for batch insertion.
type BatchEntry struct {
	RID uint64
	Doc Document
}

// Collection is the stored collection a link belongs to. A nil
// collection leaves the link inert: every routed operation fails with
// ErrCollectionNotLoaded.
type Collection interface {
	// ID returns the collection's identifier.
	ID() uint64
	// Deleted reports whether the collection is being removed; an
	// unloading link drops its view data when this is true.
	Deleted() bool
	// Database returns the database context used to resolve views.
	Database() Resolver
}

// Resolver looks entities up in the database's shared id space.
type Resolver interface {
	// ViewByID returns the view with the given id. It fails with
	// ErrViewNotFound when no entity has that id or the entity with
	// that id is not a search view.
	ViewByID(id uint64) (View, error)
}

// View is the search index a link feeds. Implementations must be safe
// for concurrent use.
type View interface {
	ID() uint64

	// Insert indexes one document for the given collection inside the
	// caller's transaction, tokenized per meta.
	Insert(t *txn.Txn, collection, rid uint64, doc Document, meta *LinkMeta) error
	// InsertBatch indexes a batch of documents inside the caller's
	// transaction.
	InsertBatch(t *txn.Txn, collection uint64, batch []BatchEntry, meta *LinkMeta) error
	// Remove drops one document's index entries inside the caller's
	// transaction.
	Remove(t *txn.Txn, collection, rid uint64) error
	// Drop removes every index entry belonging to the collection.
	Drop(collection uint64) error

	// RegisterLink records the link with the view. Registering an
	// already-registered link is a no-op. The view never mutates the
	// link; binding the view onto the link is the caller's step.
	RegisterLink(l *Link) error
	// UnregisterLink removes a previously registered link.
	UnregisterLink(l *Link) error
	// LinkCount returns the number of registered links.
	LinkCount() int
	// Memory returns the view's approximate memory footprint in bytes.
	Memory() int
}

// StatusSink receives the outcome of an asynchronous batch operation.
// Implementations must be safe for concurrent use.
type StatusSink interface {
	// SetStatus reports one outcome; nil means success.
	SetStatus(err error)
}
