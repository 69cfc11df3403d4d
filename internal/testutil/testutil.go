// Package testutil provides shared test helpers for setting up the
// engine and its storage.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/skarde/beacon/internal/catalog"
	"github.com/skarde/beacon/internal/engine"
	"github.com/skarde/beacon/internal/events"
	"github.com/skarde/beacon/internal/store"
	"github.com/skarde/beacon/internal/task"
)

// Logger returns a logger that swallows everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore creates a temporary SQLite store that is automatically
// cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "beacon-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestService wires a full engine on a temporary store: catalog, job
// queue, and event broker, all torn down with the test.
func TestService(t *testing.T) (*engine.Service, *events.Broker) {
	t.Helper()

	logger := Logger()
	st := TestStore(t)

	cat, err := catalog.Open(context.Background(), st, logger)
	if err != nil {
		t.Fatal(err)
	}
	queue := task.New(logger)
	t.Cleanup(func() { queue.Close() })
	broker := events.NewBroker(time.Millisecond)
	t.Cleanup(func() { broker.Close() })

	return engine.New(st, cat, queue, broker, logger), broker
}
