package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skarde/beacon/internal/catalog"
	"github.com/skarde/beacon/internal/events"
	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/task"
)

// Documents indexed per backfill transaction.
const backfillBatch = 256

// CreateLink creates a link on the collection and schedules a backfill
// job that feeds the collection's existing documents into the view.
// The returned job id tracks the backfill.
func (s *Service) CreateLink(ctx context.Context, collection string, def search.Definition) (*search.Link, string, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return nil, "", err
	}
	l, err := s.catalog.CreateLink(ctx, c.ID(), def)
	if err != nil {
		return nil, "", err
	}

	jobID, err := s.queue.Enqueue("backfill", s.backfill(c, l))
	if err != nil {
		// The link exists and will pick up new writes; only the
		// existing documents are missing from the view.
		s.logger.Warn("engine: backfill not scheduled",
			slog.Uint64("link", l.ID()), slog.String("error", err.Error()))
	}

	s.broker.Publish(events.Event{Type: events.LinkCreated, Data: map[string]any{
		"collection": collection,
		"link":       l.ID(),
		"view":       l.ViewID(),
	}})
	return l, jobID, nil
}

// backfill pages through the collection's documents and batch-inserts
// them through the link, one transaction per page.
func (s *Service) backfill(c *catalog.Collection, l *search.Link) task.JobFunc {
	return func(ctx context.Context) error {
		var after uint64
		total := 0
		for {
			rows, err := s.store.DocumentsAfter(ctx, c.ID(), after, backfillBatch)
			if err != nil {
				return fmt.Errorf("engine: backfill: %w", err)
			}
			if len(rows) == 0 {
				break
			}
			entries := make([]search.BatchEntry, 0, len(rows))
			for _, row := range rows {
				doc, err := decodeDocument(row.Body)
				if err != nil {
					s.logger.Warn("engine: backfill: skipping unreadable document",
						slog.Uint64("rid", row.RID), slog.String("error", err.Error()))
					continue
				}
				entries = append(entries, search.BatchEntry{RID: row.RID, Doc: doc})
			}

			tx, err := s.store.Begin(ctx)
			if err != nil {
				return fmt.Errorf("engine: backfill: %w", err)
			}
			status := task.NewStatus()
			l.BatchInsert(tx, entries, status)
			if err := status.Err(); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("engine: backfill batch after %d: %w", after, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("engine: backfill: %w", err)
			}

			total += len(entries)
			after = rows[len(rows)-1].RID
			if len(rows) < backfillBatch {
				break
			}
		}
		s.logger.Info("engine: backfill complete",
			slog.Uint64("link", l.ID()), slog.Int("documents", total))
		s.broker.Publish(events.Event{Type: events.IndexUpdated, Data: map[string]any{"link": l.ID()}})
		return nil
	}
}

// DropLink drops one link from a collection.
func (s *Service) DropLink(ctx context.Context, collection string, linkID uint64) error {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return err
	}
	if err := s.catalog.DropLink(ctx, c.ID(), linkID); err != nil {
		return err
	}
	s.broker.Publish(events.Event{Type: events.LinkDropped, Data: map[string]any{
		"collection": collection,
		"link":       linkID,
	}})
	return nil
}

// Links returns the serialized definitions of a collection's links,
// with resource figures when asked for.
func (s *Service) Links(ctx context.Context, collection string, withFigures bool) ([]search.Definition, error) {
	c, err := s.catalog.CollectionNamed(collection)
	if err != nil {
		return nil, err
	}
	links := c.Links()
	out := make([]search.Definition, 0, len(links))
	for _, l := range links {
		out = append(out, l.ToDefinition(withFigures))
	}
	return out, nil
}
