// Package engine ties the store, the catalog, the job queue, and the
// event broker together into the document engine's service surface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/skarde/beacon/internal/catalog"
	"github.com/skarde/beacon/internal/events"
	"github.com/skarde/beacon/internal/fulltext"
	"github.com/skarde/beacon/internal/store"
	"github.com/skarde/beacon/internal/task"
)

// Service exposes the engine's operations. All methods are safe for
// concurrent use.
type Service struct {
	store   *store.DB
	catalog *catalog.DB
	queue   *task.Queue
	broker  *events.Broker
	logger  *slog.Logger
}

// New wires a service.
func New(st *store.DB, cat *catalog.DB, queue *task.Queue, broker *events.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, catalog: cat, queue: queue, broker: broker, logger: logger}
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	ID        uint64 `json:"id"`
	GUID      string `json:"guid"`
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Links     int    `json:"links"`
}

// ViewInfo describes one search view.
type ViewInfo struct {
	ID     uint64 `json:"id"`
	GUID   string `json:"guid"`
	Name   string `json:"name"`
	Links  int    `json:"links"`
	Memory int    `json:"memory"`
}

// SearchResult is one search hit with its collection resolved to a
// name.
type SearchResult struct {
	Collection string `json:"collection"`
	RID        uint64 `json:"rid"`
	Field      string `json:"field"`
	Snippet    string `json:"snippet"`
}

// CreateCollection creates an empty collection.
func (s *Service) CreateCollection(ctx context.Context, name string) (*catalog.Collection, error) {
	c, err := s.catalog.CreateCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	s.broker.Publish(events.Event{Type: events.CollectionCreated, Data: map[string]any{"name": name, "id": c.ID()}})
	return c, nil
}

// DropCollection drops a collection, its documents, and its links.
func (s *Service) DropCollection(ctx context.Context, name string) error {
	c, err := s.catalog.CollectionNamed(name)
	if err != nil {
		return err
	}
	if err := s.catalog.DropCollection(ctx, c.ID()); err != nil {
		return err
	}
	s.broker.Publish(events.Event{Type: events.CollectionDropped, Data: map[string]any{"name": name, "id": c.ID()}})
	return nil
}

// Collections lists every collection with its document and link counts.
func (s *Service) Collections(ctx context.Context) ([]CollectionInfo, error) {
	var out []CollectionInfo
	for _, c := range s.catalog.Collections() {
		n, err := s.store.DocumentCount(ctx, c.ID())
		if err != nil {
			return nil, fmt.Errorf("engine: count documents of %q: %w", c.Name(), err)
		}
		out = append(out, CollectionInfo{
			ID:        c.ID(),
			GUID:      c.GUID(),
			Name:      c.Name(),
			Documents: n,
			Links:     len(c.Links()),
		})
	}
	return out, nil
}

// CreateView creates an empty search view.
func (s *Service) CreateView(ctx context.Context, name string) (*fulltext.View, error) {
	v, err := s.catalog.CreateView(ctx, name)
	if err != nil {
		return nil, err
	}
	s.broker.Publish(events.Event{Type: events.ViewCreated, Data: map[string]any{"name": name, "id": v.ID()}})
	return v, nil
}

// DropView drops a view together with every link bound to it.
func (s *Service) DropView(ctx context.Context, name string) error {
	v, err := s.catalog.ViewNamed(name)
	if err != nil {
		return err
	}
	if err := s.catalog.DropView(ctx, v.ID()); err != nil {
		return err
	}
	s.broker.Publish(events.Event{Type: events.ViewDropped, Data: map[string]any{"name": name, "id": v.ID()}})
	return nil
}

// Views lists every view with its link count and memory footprint.
func (s *Service) Views(ctx context.Context) ([]ViewInfo, error) {
	var out []ViewInfo
	for _, v := range s.catalog.Views() {
		out = append(out, ViewInfo{
			ID:     v.ID(),
			GUID:   v.GUID(),
			Name:   v.Name(),
			Links:  v.LinkCount(),
			Memory: v.Memory(),
		})
	}
	return out, nil
}

// Search runs a query against a view.
func (s *Service) Search(ctx context.Context, view, query string, limit int) ([]SearchResult, error) {
	v, err := s.catalog.ViewNamed(view)
	if err != nil {
		return nil, err
	}
	hits, err := v.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		name := strconv.FormatUint(h.Collection, 10)
		if c, err := s.catalog.CollectionByID(h.Collection); err == nil {
			name = c.Name()
		}
		out = append(out, SearchResult{
			Collection: name,
			RID:        h.RID,
			Field:      h.Field,
			Snippet:    h.Snippet,
		})
	}
	return out, nil
}

// JobState returns the state of one background job.
func (s *Service) JobState(id string) (task.Job, error) {
	return s.queue.State(id)
}

// Jobs lists every background job, oldest first.
func (s *Service) Jobs() []task.Job {
	return s.queue.List()
}
