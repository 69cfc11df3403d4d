package catalog

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/txn"
)

// Collection is a stored document collection. Its links fan every
// document mutation out to the search views they are bound to.
type Collection struct {
	id   uint64
	guid string
	name string
	db   *DB

	deleted atomic.Bool

	mu    sync.RWMutex
	links map[uint64]*search.Link
}

var _ search.Collection = (*Collection)(nil)

func newCollection(id uint64, guid, name string, db *DB) *Collection {
	return &Collection{
		id:    id,
		guid:  guid,
		name:  name,
		db:    db,
		links: make(map[uint64]*search.Link),
	}
}

func (c *Collection) ID() uint64   { return c.id }
func (c *Collection) GUID() string { return c.guid }
func (c *Collection) Name() string { return c.name }

// Deleted reports whether the collection is being dropped.
func (c *Collection) Deleted() bool { return c.deleted.Load() }

func (c *Collection) markDeleted() { c.deleted.Store(true) }

// Database returns the resolver links use to look their view up.
func (c *Collection) Database() search.Resolver { return c.db }

func (c *Collection) addLink(l *search.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[l.ID()] = l
}

func (c *Collection) removeLink(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, id)
}

// Link returns the link with the given id.
func (c *Collection) Link(id uint64) (*search.Link, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.links[id]
	return l, ok
}

// Links returns the collection's links, ordered by id.
func (c *Collection) Links() []*search.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*search.Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RouteInsert feeds one inserted document through every link inside the
// caller's transaction.
func (c *Collection) RouteInsert(t *txn.Txn, rid uint64, doc search.Document) error {
	for _, l := range c.Links() {
		if err := l.Insert(t, rid, doc); err != nil {
			return err
		}
	}
	return nil
}

// RouteRemove feeds one document removal through every link inside the
// caller's transaction.
func (c *Collection) RouteRemove(t *txn.Txn, rid uint64) error {
	for _, l := range c.Links() {
		if err := l.Remove(t, rid); err != nil {
			return err
		}
	}
	return nil
}
