package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/events"
	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/store"
	"github.com/skarde/beacon/internal/task"
)

func decodeDocument(body []byte) (search.Document, error) {
	var doc search.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("engine: document body must be a JSON object: %v: %w", err, apperr.ErrBadParameter)
	}
	return doc, nil
}

// InsertDocument stores a document and feeds it through the
// collection's links, all inside one transaction: either the document
// is stored and indexed, or neither.
func (s *Service) InsertDocument(ctx context.Context, collection string, body []byte) (uint64, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return 0, err
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return 0, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: insert document: %w", err)
	}
	defer tx.Rollback()

	rid, err := s.store.InsertDocument(tx, c.ID(), body)
	if err != nil {
		return 0, fmt.Errorf("engine: insert document: %w", err)
	}
	if err := c.RouteInsert(tx, rid, doc); err != nil {
		return 0, fmt.Errorf("engine: index document %d: %w", rid, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("engine: insert document: %w", err)
	}

	s.broker.PublishDocumentEvent(events.DocumentIndexed, collection, rid)
	return rid, nil
}

// UpdateDocument replaces a document's body and re-indexes it.
func (s *Service) UpdateDocument(ctx context.Context, collection string, rid uint64, body []byte) error {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("engine: update document: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.UpdateDocument(tx, c.ID(), rid, body); err != nil {
		return fmt.Errorf("engine: update document %d: %w", rid, err)
	}
	if err := c.RouteInsert(tx, rid, doc); err != nil {
		return fmt.Errorf("engine: re-index document %d: %w", rid, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("engine: update document: %w", err)
	}

	s.broker.PublishDocumentEvent(events.DocumentIndexed, collection, rid)
	return nil
}

// RemoveDocument deletes a document and takes it out of every linked
// view.
func (s *Service) RemoveDocument(ctx context.Context, collection string, rid uint64) error {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("engine: remove document: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.DeleteDocument(tx, c.ID(), rid); err != nil {
		return fmt.Errorf("engine: remove document %d: %w", rid, err)
	}
	if err := c.RouteRemove(tx, rid); err != nil {
		return fmt.Errorf("engine: unindex document %d: %w", rid, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("engine: remove document: %w", err)
	}

	s.broker.PublishDocumentEvent(events.DocumentRemoved, collection, rid)
	return nil
}

// GetDocument returns one stored document.
func (s *Service) GetDocument(ctx context.Context, collection string, rid uint64) (*store.DocumentRow, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, c.ID(), rid)
}

// ListDocuments pages through a collection's documents in rid order.
func (s *Service) ListDocuments(ctx context.Context, collection string, after uint64, limit int) ([]store.DocumentRow, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return nil, err
	}
	return s.store.DocumentsAfter(ctx, c.ID(), after, limit)
}

// ImportDocuments stores a batch of documents in one transaction and
// feeds it through every link as one batch per link. The whole import
// stands or falls together.
func (s *Service) ImportDocuments(ctx context.Context, collection string, docs [][]byte) (int, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: import: %w", err)
	}
	defer tx.Rollback()

	entries := make([]search.BatchEntry, 0, len(docs))
	for _, body := range docs {
		doc, err := decodeDocument(body)
		if err != nil {
			return 0, err
		}
		rid, err := s.store.InsertDocument(tx, c.ID(), body)
		if err != nil {
			return 0, fmt.Errorf("engine: import: %w", err)
		}
		entries = append(entries, search.BatchEntry{RID: rid, Doc: doc})
	}
	for _, l := range c.Links() {
		status := task.NewStatus()
		l.BatchInsert(tx, entries, status)
		if err := status.Err(); err != nil {
			return 0, fmt.Errorf("engine: import: link %d: %w", l.ID(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("engine: import: %w", err)
	}

	s.broker.Publish(events.Event{Type: events.ImportCompleted, Data: map[string]any{
		"collection": collection,
		"documents":  len(entries),
	}})
	return len(entries), nil
}

// EnqueueImport runs ImportDocuments as a background job and returns
// the job id.
func (s *Service) EnqueueImport(collection string, docs [][]byte) (string, error) {
	return s.queue.Enqueue("import", func(ctx context.Context) error {
		n, err := s.ImportDocuments(ctx, collection, docs)
		if err != nil {
			return err
		}
		s.logger.Info("engine: import complete",
			slog.String("collection", collection), slog.Int("documents", n))
		return nil
	})
}
