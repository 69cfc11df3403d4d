package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Importer queues a batch of documents for a collection and returns the
// job id.
type Importer interface {
	EnqueueImport(collection string, docs [][]byte) (string, error)
}

// Writers may still be flushing when the first event for a file fires,
// so a file is only picked up once it has been quiet for settleDelay.
const (
	settleDelay = 250 * time.Millisecond
	settleTick  = 100 * time.Millisecond
)

// Sweep imports every pending drop file once. Call it on startup to
// catch files dropped while the process was down.
func Sweep(dir *Dir, imp Importer, logger *slog.Logger) error {
	pending, err := dir.Pending()
	if err != nil {
		return err
	}
	for _, pf := range pending {
		processFile(dir, imp, logger, pf)
	}
	return nil
}

// processFile reads a drop file, moves it aside, and queues its
// documents. Moving before queueing means a second event for the same
// file finds it gone instead of importing it twice.
func processFile(dir *Dir, imp Importer, logger *slog.Logger, pf PendingFile) {
	data, err := dir.Read(pf.Rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("ingest: file already handled", slog.String("file", pf.Rel))
			return
		}
		logger.Error("ingest: read failed", slog.String("file", pf.Rel), slog.String("error", err.Error()))
		return
	}
	docs, err := splitDocuments(data)
	if err != nil {
		logger.Error("ingest: unusable file", slog.String("file", pf.Rel), slog.String("error", err.Error()))
		if err := dir.MarkFailed(pf.Rel); err != nil {
			logger.Error("ingest: mark failed", slog.String("file", pf.Rel), slog.String("error", err.Error()))
		}
		return
	}
	if err := dir.MarkProcessed(pf.Rel); err != nil {
		logger.Error("ingest: mark processed", slog.String("file", pf.Rel), slog.String("error", err.Error()))
		return
	}
	jobID, err := imp.EnqueueImport(pf.Collection, docs)
	if err != nil {
		logger.Error("ingest: enqueue failed", slog.String("file", pf.Rel), slog.String("error", err.Error()))
		return
	}
	logger.Info("ingest: file queued",
		slog.String("file", pf.Rel),
		slog.String("collection", pf.Collection),
		slog.Int("documents", len(docs)),
		slog.String("job", jobID))
}

// addCollectionDirs registers the root's immediate subdirectories with
// the watcher, skipping the reserved ones.
func addCollectionDirs(w *fsnotify.Watcher, dir *Dir) error {
	entries, err := os.ReadDir(dir.Root())
	if err != nil {
		return fmt.Errorf("ingest: read root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == processedDir || entry.Name() == failedDir {
			continue
		}
		if err := w.Add(filepath.Join(dir.Root(), entry.Name())); err != nil {
			return fmt.Errorf("ingest: watch %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Watch blocks, importing drop files as they appear, until the context
// is cancelled.
func Watch(ctx context.Context, dir *Dir, imp Importer, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir.Root()); err != nil {
		return fmt.Errorf("ingest: watch root: %w", err)
	}
	if err := addCollectionDirs(w, dir); err != nil {
		return err
	}

	// Files seen but not yet settled, keyed by root-relative path.
	settle := make(map[string]time.Time)
	ticker := time.NewTicker(settleTick)
	defer ticker.Stop()

	logger.Info("ingest: watching", slog.String("dir", dir.Root()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return errors.New("ingest: watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			rel, err := filepath.Rel(dir.Root(), event.Name)
			if err != nil {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// A new collection directory: watch it and sweep
				// anything that landed before the watch was in place.
				if filepath.Dir(event.Name) != dir.Root() {
					continue
				}
				base := filepath.Base(event.Name)
				if base == processedDir || base == failedDir {
					continue
				}
				if err := w.Add(event.Name); err != nil {
					logger.Error("ingest: watch new dir", slog.String("dir", rel), slog.String("error", err.Error()))
					continue
				}
				entries, err := os.ReadDir(event.Name)
				if err != nil {
					continue
				}
				now := time.Now()
				for _, entry := range entries {
					if entry.IsDir() {
						continue
					}
					if _, ok := splitDrop(filepath.Join(rel, entry.Name())); ok {
						settle[filepath.Join(rel, entry.Name())] = now
					}
				}
				continue
			}
			if _, ok := splitDrop(rel); ok {
				settle[rel] = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("ingest: watcher closed")
			}
			logger.Error("ingest: watcher error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			for rel, last := range settle {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(settle, rel)
				if pf, ok := splitDrop(rel); ok {
					processFile(dir, imp, logger, pf)
				}
			}
		}
	}
}
