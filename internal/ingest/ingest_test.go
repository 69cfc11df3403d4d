package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type importCall struct {
	collection string
	docs       int
}

type fakeImporter struct {
	mu    sync.Mutex
	calls []importCall
}

func (f *fakeImporter) EnqueueImport(collection string, docs [][]byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, importCall{collection: collection, docs: len(docs)})
	return "job-test", nil
}

func (f *fakeImporter) snapshot() []importCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]importCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDir(t *testing.T) *Dir {
	t.Helper()
	dir, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return dir
}

func dropFile(t *testing.T, dir *Dir, collection, name, content string) {
	t.Helper()
	abs := filepath.Join(dir.Root(), collection)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(abs, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSplitDocuments(t *testing.T) {
	docs, err := splitDocuments([]byte(`{"title":"one"}`))
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("object: got %d documents", len(docs))
	}

	docs, err = splitDocuments([]byte(`[{"a":1}, {"a":2}, {"a":3}]`))
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("array: got %d documents", len(docs))
	}

	if _, err := splitDocuments([]byte(`[{"a":1}`)); err == nil {
		t.Fatal("expected error for truncated array")
	}
	if _, err := splitDocuments([]byte("   ")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestPendingSkipsReservedAndHidden(t *testing.T) {
	dir := testDir(t)
	dropFile(t, dir, "notes", "a.json", `{"t":1}`)
	dropFile(t, dir, "notes", ".partial.json", `{"t":2}`)
	dropFile(t, dir, "notes", "readme.txt", "not json")
	dropFile(t, dir, processedDir, "old.json", `{"t":3}`)
	dropFile(t, dir, failedDir, "bad.json", `{"t":4}`)

	pending, err := dir.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending files, want 1: %v", len(pending), pending)
	}
	if pending[0].Collection != "notes" {
		t.Fatalf("collection = %q", pending[0].Collection)
	}
}

func TestReadRejectsTraversal(t *testing.T) {
	dir := testDir(t)
	if _, err := dir.Read("../outside.json"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := dir.Read("/etc/passwd"); err == nil {
		t.Fatal("expected absolute path to be rejected")
	}
}

func TestSweep(t *testing.T) {
	dir := testDir(t)
	dropFile(t, dir, "notes", "batch.json", `[{"title":"a"},{"title":"b"}]`)
	dropFile(t, dir, "recipes", "single.json", `{"title":"soup"}`)

	imp := &fakeImporter{}
	if err := Sweep(dir, imp, testLogger()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	calls := imp.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d imports, want 2", len(calls))
	}
	byCollection := map[string]int{}
	for _, c := range calls {
		byCollection[c.collection] = c.docs
	}
	if byCollection["notes"] != 2 || byCollection["recipes"] != 1 {
		t.Fatalf("unexpected imports: %v", byCollection)
	}

	if _, err := os.Stat(filepath.Join(dir.Root(), processedDir, "notes", "batch.json")); err != nil {
		t.Fatalf("batch.json not moved to processed: %v", err)
	}
	pending, err := dir.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("files left pending after sweep: %v", pending)
	}
}

func TestSweepMovesBadFileToFailed(t *testing.T) {
	dir := testDir(t)
	dropFile(t, dir, "notes", "broken.json", `[{"title":`)

	imp := &fakeImporter{}
	if err := Sweep(dir, imp, testLogger()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if calls := imp.snapshot(); len(calls) != 0 {
		t.Fatalf("broken file should not be imported, got %v", calls)
	}
	if _, err := os.Stat(filepath.Join(dir.Root(), failedDir, "notes", "broken.json")); err != nil {
		t.Fatalf("broken.json not moved to failed: %v", err)
	}
}

func TestWatchPicksUpNewFile(t *testing.T) {
	dir := testDir(t)
	if err := os.MkdirAll(filepath.Join(dir.Root(), "notes"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	imp := &fakeImporter{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, dir, imp, testLogger())
	}()
	// Give the watcher a moment to register its directories.
	time.Sleep(100 * time.Millisecond)

	dropFile(t, dir, "notes", "late.json", `{"title":"late"}`)

	eventually(t, 5*time.Second, func() bool {
		calls := imp.snapshot()
		return len(calls) == 1 && calls[0].collection == "notes"
	})
	eventually(t, 2*time.Second, func() bool {
		_, err := os.Stat(filepath.Join(dir.Root(), processedDir, "notes", "late.json"))
		return err == nil
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatchNewCollectionDir(t *testing.T) {
	dir := testDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	imp := &fakeImporter{}
	go Watch(ctx, dir, imp, testLogger())
	time.Sleep(100 * time.Millisecond)

	// The directory appears after the watch started; files inside it
	// must still be picked up.
	dropFile(t, dir, "fresh", "first.json", `{"title":"first"}`)

	eventually(t, 5*time.Second, func() bool {
		calls := imp.snapshot()
		return len(calls) == 1 && calls[0].collection == "fresh"
	})
}
