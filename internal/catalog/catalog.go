// Package catalog is the registry of a database's collections, views,
// and links. Collections and views share one identifier space and one
// name space; links live with their collection and are restored from
// the persisted catalog on open.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/fulltext"
	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/store"
)

// Entity is a named catalog entry. Collections and views are entities;
// links are not, they belong to their collection.
type Entity interface {
	ID() uint64
	GUID() string
	Name() string
}

var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func validateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 128),
		validation.Match(nameRe).Error("must start with a letter and contain only letters, digits, '_' or '-'"),
	)
}

// DB is the in-memory registry backed by the persistent catalog.
type DB struct {
	store  *store.DB
	logger *slog.Logger

	mu       sync.RWMutex
	entities map[uint64]Entity
	names    map[string]uint64
	nextID   uint64
}

var _ search.Resolver = (*DB)(nil)

// Open loads the persisted catalog: collections and views are rebuilt
// first, then links, skip-registration style, and finally every link is
// loaded against the rebuilt registry. A link that cannot be rebuilt or
// loaded is logged and left out or unbound; it does not fail the open.
func Open(ctx context.Context, st *store.DB, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db := &DB{
		store:    st,
		logger:   logger,
		entities: make(map[uint64]Entity),
		names:    make(map[string]uint64),
	}

	maxID, err := st.MaxCatalogID(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: seed id counter: %w", err)
	}
	db.nextID = maxID

	rows, err := st.CatalogRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	if err := db.restore(rows); err != nil {
		return nil, err
	}
	return db, nil
}

// restore rebuilds the registry from catalog rows. Rows are ordered by
// id, so a link's collection and view always precede it.
func (db *DB) restore(rows []store.CatalogRow) error {
	for _, row := range rows {
		switch row.Kind {
		case store.KindCollection:
			c := newCollection(row.ID, row.GUID, row.Name, db)
			db.entities[row.ID] = c
			db.names[row.Name] = row.ID

		case store.KindView:
			v, err := fulltext.New(row.ID, row.GUID, row.Name, db.store.Conn())
			if err != nil {
				return fmt.Errorf("catalog: restore view %q: %w", row.Name, err)
			}
			db.entities[row.ID] = v
			db.names[row.Name] = row.ID

		case store.KindLink:
			parent, ok := db.entities[row.ParentID].(*Collection)
			if !ok {
				db.logger.Warn("catalog: link row without collection, skipping",
					slog.Uint64("link", row.ID), slog.Uint64("collection", row.ParentID))
				continue
			}
			def, err := decodeDefinition(row.Definition)
			if err != nil {
				db.logger.Warn("catalog: link definition unreadable, skipping",
					slog.Uint64("link", row.ID), slog.String("error", err.Error()))
				continue
			}
			l, err := search.NewLink(row.ID, parent, def.SetSkipRegistration())
			if err != nil {
				db.logger.Warn("catalog: link rebuild failed, skipping",
					slog.Uint64("link", row.ID), slog.String("error", err.Error()))
				continue
			}
			parent.addLink(l)

		default:
			db.logger.Warn("catalog: unknown row kind, skipping",
				slog.Uint64("id", row.ID), slog.String("kind", row.Kind))
		}
	}

	for _, c := range db.Collections() {
		for _, l := range c.Links() {
			if err := l.Load(); err != nil {
				db.logger.Warn("catalog: link left unbound",
					slog.Uint64("link", l.ID()),
					slog.String("collection", c.Name()),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func decodeDefinition(raw string) (search.Definition, error) {
	def := search.Definition{}
	if raw == "" {
		return def, nil
	}
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, err
	}
	return def, nil
}

func (db *DB) allocID() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	return db.nextID
}

// ViewByID resolves a view in the shared id space. An unknown id and an
// id that belongs to an entity of another kind both fail with
// ErrViewNotFound; callers never get to downcast blindly.
func (db *DB) ViewByID(id uint64) (search.View, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.entities[id]
	if !ok {
		return nil, fmt.Errorf("catalog: no entity %d: %w", id, apperr.ErrViewNotFound)
	}
	v, ok := e.(search.View)
	if !ok {
		return nil, fmt.Errorf("catalog: entity %d is not a search view: %w", id, apperr.ErrViewNotFound)
	}
	return v, nil
}

// FulltextView resolves a view by id to its concrete type.
func (db *DB) FulltextView(id uint64) (*fulltext.View, error) {
	v, err := db.ViewByID(id)
	if err != nil {
		return nil, err
	}
	return v.(*fulltext.View), nil
}

// ViewNamed resolves a view by name.
func (db *DB) ViewNamed(name string) (*fulltext.View, error) {
	db.mu.RLock()
	id, ok := db.names[name]
	db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: no view %q: %w", name, apperr.ErrViewNotFound)
	}
	return db.FulltextView(id)
}

// CollectionByID resolves a collection by id.
func (db *DB) CollectionByID(id uint64) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.entities[id].(*Collection)
	if !ok {
		return nil, fmt.Errorf("catalog: no collection %d: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

// CollectionNamed resolves a collection by name.
func (db *DB) CollectionNamed(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.names[name]
	if !ok {
		return nil, fmt.Errorf("catalog: no collection %q: %w", name, apperr.ErrNotFound)
	}
	c, ok := db.entities[id].(*Collection)
	if !ok {
		return nil, fmt.Errorf("catalog: %q is not a collection: %w", name, apperr.ErrNotFound)
	}
	return c, nil
}

// Collections returns every collection, ordered by id.
func (db *DB) Collections() []*Collection {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Collection
	for _, e := range db.entities {
		if c, ok := e.(*Collection); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Views returns every view, ordered by id.
func (db *DB) Views() []*fulltext.View {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*fulltext.View
	for _, e := range db.entities {
		if v, ok := e.(*fulltext.View); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (db *DB) register(e Entity) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, taken := db.names[e.Name()]; taken {
		return fmt.Errorf("catalog: name %q already in use: %w", e.Name(), apperr.ErrAlreadyExists)
	}
	db.entities[e.ID()] = e
	db.names[e.Name()] = e.ID()
	return nil
}

func (db *DB) unregister(e Entity) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.entities, e.ID())
	delete(db.names, e.Name())
}

func (db *DB) nameTaken(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, taken := db.names[name]
	return taken
}

// CreateCollection creates and persists an empty collection.
func (db *DB) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if err := validateName(name); err != nil {
		return nil, fmt.Errorf("catalog: collection name %q: %v: %w", name, err, apperr.ErrBadParameter)
	}
	if db.nameTaken(name) {
		return nil, fmt.Errorf("catalog: name %q already in use: %w", name, apperr.ErrAlreadyExists)
	}
	c := newCollection(db.allocID(), uuid.NewString(), name, db)
	row := store.CatalogRow{ID: c.ID(), Kind: store.KindCollection, GUID: c.GUID(), Name: c.Name()}
	if err := db.store.InsertCatalogRow(ctx, row); err != nil {
		return nil, fmt.Errorf("catalog: persist collection %q: %w", name, err)
	}
	if err := db.register(c); err != nil {
		_ = db.store.DeleteCatalogRow(ctx, c.ID())
		return nil, err
	}
	return c, nil
}

// CreateView creates and persists an empty search view together with
// its posting table.
func (db *DB) CreateView(ctx context.Context, name string) (*fulltext.View, error) {
	if err := validateName(name); err != nil {
		return nil, fmt.Errorf("catalog: view name %q: %v: %w", name, err, apperr.ErrBadParameter)
	}
	if db.nameTaken(name) {
		return nil, fmt.Errorf("catalog: name %q already in use: %w", name, apperr.ErrAlreadyExists)
	}
	v, err := fulltext.New(db.allocID(), uuid.NewString(), name, db.store.Conn())
	if err != nil {
		return nil, err
	}
	row := store.CatalogRow{ID: v.ID(), Kind: store.KindView, GUID: v.GUID(), Name: v.Name()}
	if err := db.store.InsertCatalogRow(ctx, row); err != nil {
		_ = v.Destroy()
		return nil, fmt.Errorf("catalog: persist view %q: %w", name, err)
	}
	if err := db.register(v); err != nil {
		_ = db.store.DeleteCatalogRow(ctx, v.ID())
		_ = v.Destroy()
		return nil, err
	}
	return v, nil
}

// CreateLink builds, registers, and persists a link from def on the
// collection. The persisted definition is the normalized form, so a
// reopened catalog rebuilds a link that matches it. An equivalent
// existing link fails with ErrAlreadyExists; a different link to the
// same view with ErrConflict.
func (db *DB) CreateLink(ctx context.Context, collectionID uint64, def search.Definition) (*search.Link, error) {
	normalized, err := search.Normalize(def)
	if err != nil {
		return nil, err
	}
	c, err := db.CollectionByID(collectionID)
	if err != nil {
		return nil, err
	}

	viewID, _, err := normalized.ViewID()
	if err != nil {
		return nil, err
	}
	for _, l := range c.Links() {
		if l.MatchesDefinition(normalized) {
			return nil, fmt.Errorf("catalog: equivalent link %d exists: %w", l.ID(), apperr.ErrAlreadyExists)
		}
		if viewID != 0 && l.ViewID() == viewID {
			return nil, fmt.Errorf("catalog: view %d already linked by link %d: %w", viewID, l.ID(), apperr.ErrConflict)
		}
	}

	l, err := search.NewLink(db.allocID(), c, normalized)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		db.detachLink(l)
		return nil, fmt.Errorf("catalog: encode link definition: %w", err)
	}
	row := store.CatalogRow{
		ID:         l.ID(),
		Kind:       store.KindLink,
		GUID:       uuid.NewString(),
		ParentID:   collectionID,
		Definition: string(raw),
	}
	if err := db.store.InsertCatalogRow(ctx, row); err != nil {
		db.detachLink(l)
		return nil, fmt.Errorf("catalog: persist link: %w", err)
	}
	c.addLink(l)
	return l, nil
}

// detachLink unregisters a link that never made it into its collection.
func (db *DB) detachLink(l *search.Link) {
	if id := l.ViewID(); id != 0 {
		if v, err := db.ViewByID(id); err == nil {
			_ = v.UnregisterLink(l)
		}
	}
}

// DropLink drops a link: the collection's data leaves the view, the
// link detaches for good, and its catalog row is deleted.
func (db *DB) DropLink(ctx context.Context, collectionID, linkID uint64) error {
	c, err := db.CollectionByID(collectionID)
	if err != nil {
		return err
	}
	l, ok := c.Link(linkID)
	if !ok {
		return fmt.Errorf("catalog: no link %d on collection %d: %w", linkID, collectionID, apperr.ErrNotFound)
	}
	if err := db.store.DeleteCatalogRow(ctx, linkID); err != nil {
		return fmt.Errorf("catalog: delete link row: %w", err)
	}
	if err := l.Drop(); err != nil && !errors.Is(err, apperr.ErrCollectionNotLoaded) {
		return err
	}
	c.removeLink(linkID)
	return nil
}

// DropView drops a view with everything it carries: every link bound to
// it is dropped first, then the posting table and the catalog rows.
func (db *DB) DropView(ctx context.Context, id uint64) error {
	v, err := db.FulltextView(id)
	if err != nil {
		return err
	}
	for _, c := range db.Collections() {
		for _, l := range c.Links() {
			if l.ViewID() != v.ID() {
				continue
			}
			if err := db.DropLink(ctx, c.ID(), l.ID()); err != nil {
				return err
			}
		}
	}
	if err := db.store.DeleteCatalogRow(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete view row: %w", err)
	}
	if err := v.Destroy(); err != nil {
		return err
	}
	db.unregister(v)
	return nil
}

// DropCollection drops a collection: links are unloaded, which takes
// the collection's data out of their views, then the documents and the
// catalog rows are deleted.
func (db *DB) DropCollection(ctx context.Context, id uint64) error {
	c, err := db.CollectionByID(id)
	if err != nil {
		return err
	}
	c.markDeleted()
	for _, l := range c.Links() {
		viewID := l.ViewID()
		if err := l.Unload(); err != nil {
			return err
		}
		if viewID != 0 {
			if v, err := db.ViewByID(viewID); err == nil {
				_ = v.UnregisterLink(l)
			}
		}
		if err := db.store.DeleteCatalogRow(ctx, l.ID()); err != nil {
			return fmt.Errorf("catalog: delete link row: %w", err)
		}
		c.removeLink(l.ID())
	}
	if err := db.store.DeleteDocuments(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete documents: %w", err)
	}
	if err := db.store.DeleteCatalogRow(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete collection row: %w", err)
	}
	db.unregister(c)
	return nil
}
