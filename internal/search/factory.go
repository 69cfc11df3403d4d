package search

import (
	"fmt"

	"github.com/skarde/beacon/internal/apperr"
)

// NewLink builds the link with the given id for collection c from a
// definition. Every failure is a typed, distinguishable error:
// malformed metadata fails with ErrBadMetadata, a malformed view
// identifier with ErrBadParameter, and a missing view (no identifier
// in the definition, no entity with that id, or an entity that is not
// a search view) with ErrViewNotFound.
//
// Under the skip-registration hint the view is not resolved: the
// identifier, when present, is remembered as the deferred view id and
// the link is returned unbound, to be bound later through Load. The
// hint exists for rebuilding links while the catalog cannot be
// re-entered, and it is never serialized back out.
//
// Registration is two-step: the view records the link, then the
// factory binds the view onto it. The view never mutates the link.
func NewLink(id uint64, c Collection, def Definition) (*Link, error) {
	meta, err := ParseMeta(def)
	if err != nil {
		return nil, err
	}
	l := &Link{id: id, meta: *meta, collection: c}

	viewID, hasView, err := def.ViewID()
	if err != nil {
		return nil, err
	}

	if def.SkipRegistration() {
		l.deferredViewID = viewID
		return l, nil
	}

	if !hasView {
		return nil, fmt.Errorf("search: link %d: definition names no view: %w", id, apperr.ErrViewNotFound)
	}
	if c == nil {
		return nil, apperr.ErrCollectionNotLoaded
	}
	v, err := c.Database().ViewByID(viewID)
	if err != nil {
		return nil, fmt.Errorf("search: link %d: resolve view %d: %w", id, viewID, err)
	}
	if err := v.RegisterLink(l); err != nil {
		return nil, fmt.Errorf("search: link %d: register with view %d: %w", id, viewID, err)
	}
	l.view = v
	return l, nil
}
