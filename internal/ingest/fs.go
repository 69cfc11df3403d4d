// Package ingest watches a drop directory for document batches and
// queues them for import. A file lands under <root>/<collection>/ as a
// JSON object or an array of objects; once queued it moves to
// _processed, unreadable files move to _failed. The import itself runs
// as a background job, so a queued file's outcome lives with the job.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Reserved top-level directories; collection names cannot collide with
// them because they must start with a letter.
const (
	processedDir = "_processed"
	failedDir    = "_failed"
)

// Dir is the import drop directory.
type Dir struct {
	root string
}

// NewDir opens the drop directory rooted at the given path. The
// directory must already exist.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute drop directory path.
func (d *Dir) Root() string { return d.root }

// safePath resolves a relative path against the root and rejects any
// result that escapes it.
func (d *Dir) safePath(rel string) (string, error) {
	if rel == "" {
		return d.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("ingest: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(d.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("ingest: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) && abs != d.root {
		return "", fmt.Errorf("ingest: path escapes drop root: %s", rel)
	}
	return abs, nil
}

// PendingFile is one drop file awaiting import.
type PendingFile struct {
	Collection string
	Rel        string
}

// splitDrop maps a root-relative path onto a pending file. Only
// <collection>/<name>.json files outside the reserved directories
// qualify.
func splitDrop(rel string) (PendingFile, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return PendingFile{}, false
	}
	if parts[0] == processedDir || parts[0] == failedDir {
		return PendingFile{}, false
	}
	if strings.HasPrefix(parts[1], ".") || !strings.HasSuffix(parts[1], ".json") {
		return PendingFile{}, false
	}
	return PendingFile{Collection: parts[0], Rel: rel}, true
}

// Pending lists the drop files awaiting import.
func (d *Dir) Pending() ([]PendingFile, error) {
	var out []PendingFile
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			if entry.Name() == processedDir || entry.Name() == failedDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return nil
		}
		if pf, ok := splitDrop(rel); ok {
			out = append(out, pf)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: list pending: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a drop file.
func (d *Dir) Read(rel string) ([]byte, error) {
	abs, err := d.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", rel, err)
	}
	return data, nil
}

func (d *Dir) move(rel, intoDir string) error {
	absOld, err := d.safePath(rel)
	if err != nil {
		return err
	}
	absNew, err := d.safePath(filepath.Join(intoDir, rel))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("ingest: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("ingest: move: %w", err)
	}
	return nil
}

// MarkProcessed moves a queued drop file into the processed directory.
func (d *Dir) MarkProcessed(rel string) error { return d.move(rel, processedDir) }

// MarkFailed moves an unusable drop file into the failed directory.
func (d *Dir) MarkFailed(rel string) error { return d.move(rel, failedDir) }

// splitDocuments turns a drop file's content into individual document
// bodies: either one JSON object or a JSON array of objects.
func splitDocuments(data []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("ingest: empty file")
	}
	if trimmed[0] != '[' {
		return [][]byte{trimmed}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("ingest: parse array: %w", err)
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}
