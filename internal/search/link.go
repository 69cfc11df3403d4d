package search

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/txn"
)

// rough per-link bookkeeping cost, before metadata and view share
const linkOverheadBytes = 64

// Link binds one collection to one search view and routes the
// collection's document mutations into it. Links are built by NewLink
// and are safe for concurrent use.
type Link struct {
	id         uint64
	meta       LinkMeta
	collection Collection

	mu   sync.RWMutex
	view View
	// deferredViewID remembers the view to bind to while the link is
	// not bound: the id named at construction under the
	// skip-registration hint, or the outgoing view's id after Unload.
	// Zero means no view is remembered.
	deferredViewID uint64
}

// ID returns the link's identifier, fixed at construction.
func (l *Link) ID() uint64 { return l.id }

// Meta returns a copy of the link's metadata. Callers must not modify
// the contained maps and slices.
func (l *Link) Meta() LinkMeta { return l.meta }

// ViewID returns the bound view's id, or zero while unbound.
func (l *Link) ViewID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.view == nil {
		return 0
	}
	return l.view.ID()
}

// BoundTo reports whether the link is currently bound to v. A deferred
// view id never counts as bound.
func (l *Link) BoundTo(v View) bool {
	if v == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view != nil && l.view.ID() == v.ID()
}

// Fixed index characteristics.

// Unique reports whether the link enforces uniqueness; it never does.
func (l *Link) Unique() bool { return false }

// Sparse reports whether the link skips documents without indexed
// fields; it always does.
func (l *Link) Sparse() bool { return true }

// AllowExpansion reports whether array values expand into one entry
// per element.
func (l *Link) AllowExpansion() bool { return true }

// HasBatchInsert reports batch insertion support.
func (l *Link) HasBatchInsert() bool { return true }

// HasSelectivityEstimate reports selectivity estimation support; links
// provide none.
func (l *Link) HasSelectivityEstimate() bool { return false }

// Sorted reports whether the link maintains a sort order.
func (l *Link) Sorted() bool { return false }

// Persistent reports whether the link survives restarts.
func (l *Link) Persistent() bool { return true }

// CanBeDropped reports whether the link may be dropped.
func (l *Link) CanBeDropped() bool { return true }

// Insert routes one document insert into the view inside the caller's
// transaction.
func (l *Link) Insert(t *txn.Txn, rid uint64, doc Document) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.collection == nil || l.view == nil {
		return apperr.ErrCollectionNotLoaded
	}
	if t == nil {
		return apperr.ErrBadParameter
	}
	return l.view.Insert(t, l.collection.ID(), rid, doc, &l.meta)
}

// Remove routes one document removal into the view inside the caller's
// transaction.
func (l *Link) Remove(t *txn.Txn, rid uint64) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.collection == nil || l.view == nil {
		return apperr.ErrCollectionNotLoaded
	}
	if t == nil {
		return apperr.ErrBadParameter
	}
	return l.view.Remove(t, l.collection.ID(), rid)
}

// BatchInsert routes a batch into the view. Every outcome, guard
// failures included, is reported through sink and never returned. A
// nil sink is a contract violation: the only failure channel would be
// missing, so BatchInsert panics.
func (l *Link) BatchInsert(t *txn.Txn, batch []BatchEntry, sink StatusSink) {
	if sink == nil {
		panic("search: BatchInsert requires a status sink")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.collection == nil || l.view == nil {
		sink.SetStatus(apperr.ErrCollectionNotLoaded)
		return
	}
	if t == nil {
		sink.SetStatus(apperr.ErrBadParameter)
		return
	}
	if len(batch) == 0 {
		sink.SetStatus(nil)
		return
	}
	sink.SetStatus(l.view.InsertBatch(t, l.collection.ID(), batch, &l.meta))
}

// Drop removes the collection's data from the view and detaches the
// link for good: the deferred view id is cleared, so a dropped link
// cannot be re-bound by Load.
func (l *Link) Drop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.collection == nil || l.view == nil {
		return apperr.ErrCollectionNotLoaded
	}
	if err := l.view.Drop(l.collection.ID()); err != nil {
		return fmt.Errorf("search: link %d: drop collection data: %w", l.id, err)
	}
	v := l.view
	l.view = nil
	l.deferredViewID = 0
	if err := v.UnregisterLink(l); err != nil {
		return fmt.Errorf("search: link %d: unregister: %w", l.id, err)
	}
	return nil
}

// Unload snapshots the bound view's id into the deferred slot and
// clears the binding, so a later Load can restore it. When the
// collection is being removed its data is dropped from the view on
// the way out. Unloading an unbound link is a no-op.
func (l *Link) Unload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.view == nil {
		return nil
	}
	l.deferredViewID = l.view.ID()
	if l.collection != nil && l.collection.Deleted() {
		if err := l.view.Drop(l.collection.ID()); err != nil {
			return fmt.Errorf("search: link %d: drop deleted collection data: %w", l.id, err)
		}
	}
	l.view = nil
	return nil
}

// Load re-binds an unbound link: the deferred view id is resolved
// through the collection's database context and the link re-registers
// with the view. Already-bound links and links with no deferred id are
// left as they are.
func (l *Link) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.view != nil || l.deferredViewID == 0 {
		return nil
	}
	if l.collection == nil {
		return apperr.ErrCollectionNotLoaded
	}
	v, err := l.collection.Database().ViewByID(l.deferredViewID)
	if err != nil {
		return fmt.Errorf("search: link %d: resolve view %d: %w", l.id, l.deferredViewID, err)
	}
	if err := v.RegisterLink(l); err != nil {
		return fmt.Errorf("search: link %d: register with view %d: %w", l.id, v.ID(), err)
	}
	l.view = v
	return nil
}

// MatchesDefinition reports whether def describes this link: the view
// identifier must name the bound view (a deferred id never matches,
// and a definition without a view key only matches an unbound link)
// and the metadata must be structurally equal.
func (l *Link) MatchesDefinition(def Definition) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	viewID, ok, err := def.ViewID()
	if err != nil {
		return false
	}
	if ok {
		if l.view == nil || l.view.ID() != viewID {
			return false
		}
	} else if l.view != nil {
		return false
	}
	meta, err := ParseMeta(def)
	if err != nil {
		return false
	}
	return l.meta.Equal(meta)
}

// ToDefinition serializes the link: metadata with defaults filled, the
// id string-encoded, the type tag, and the view identifier (the bound
// view's, else the deferred one when set). The skip-registration hint
// is never emitted. With withFigures, resource figures are included.
func (l *Link) ToDefinition(withFigures bool) Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def := Definition{}
	l.meta.fill(def)
	def[defIDField] = strconv.FormatUint(l.id, 10)
	def.SetType(LinkType)
	switch {
	case l.view != nil:
		def.SetView(l.view.ID())
	case l.deferredViewID != 0:
		def.SetView(l.deferredViewID)
	}
	if withFigures {
		def[defFiguresField] = Definition{"memory": l.memory()}
	}
	return def
}

// Memory returns the approximate number of bytes the link accounts
// for: its own bookkeeping, its metadata, and an equal share of the
// bound view.
func (l *Link) Memory() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.memory()
}

func (l *Link) memory() int {
	n := linkOverheadBytes + l.meta.Memory()
	if l.view != nil {
		count := l.view.LinkCount()
		if count < 1 {
			count = 1
		}
		n += l.view.Memory() / count
	}
	return n
}
