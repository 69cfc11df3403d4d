// Package fulltext implements the SQLite-backed search view that links
// feed. Each view owns one posting table holding analyzed terms per
// document field; with the sqlite_fts5 build tag the table is an FTS5
// virtual table, otherwise a plain table searched with LIKE.
package fulltext

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/skarde/beacon/internal/analyzer"
	"github.com/skarde/beacon/internal/search"
	"github.com/skarde/beacon/internal/txn"
)

// Hit is one search result row.
type Hit struct {
	Collection uint64 `json:"collection"`
	RID        uint64 `json:"rid"`
	Field      string `json:"field"`
	Snippet    string `json:"snippet"`
}

// View is a full-text search view over the documents routed into it by
// its registered links.
type View struct {
	id    uint64
	guid  string
	name  string
	table string
	db    *sql.DB

	mu    sync.RWMutex
	links map[uint64]*search.Link
}

var _ search.View = (*View)(nil)

func indexTable(id uint64) string {
	return fmt.Sprintf("view_%d_index", id)
}

// New creates the view and its posting table. Opening an existing
// view's table is a no-op, so New also serves the restore path.
func New(id uint64, guid, name string, conn *sql.DB) (*View, error) {
	v := &View{
		id:    id,
		guid:  guid,
		name:  name,
		table: indexTable(id),
		db:    conn,
		links: make(map[uint64]*search.Link),
	}
	if err := createIndexTable(conn, v.table); err != nil {
		return nil, fmt.Errorf("fulltext: create index table for view %d: %w", id, err)
	}
	return v, nil
}

func (v *View) ID() uint64   { return v.id }
func (v *View) GUID() string { return v.guid }
func (v *View) Name() string { return v.name }

// exec runs a statement inside the caller's transaction when one is
// carried, directly on the connection otherwise.
func (v *View) exec(t *txn.Txn, query string, args ...any) error {
	ctx := context.Background()
	if t != nil {
		if tx := t.Tx(); tx != nil {
			_, err := tx.ExecContext(t.Context(), query, args...)
			return err
		}
		ctx = t.Context()
	}
	_, err := v.db.ExecContext(ctx, query, args...)
	return err
}

// Insert indexes one document, replacing whatever the view previously
// held for it.
func (v *View) Insert(t *txn.Txn, collection, rid uint64, doc search.Document, meta *search.LinkMeta) error {
	err := v.exec(t, fmt.Sprintf(`DELETE FROM %s WHERE collection_id = ? AND rid = ?`, v.table), collection, rid)
	if err != nil {
		return fmt.Errorf("fulltext: clear document %d: %w", rid, err)
	}
	for _, fv := range collectFields(doc, meta) {
		terms, err := analyze(meta, fv.root, fv.value)
		if err != nil {
			return fmt.Errorf("fulltext: field %q: %w", fv.name, err)
		}
		if len(terms) == 0 {
			continue
		}
		err = v.exec(t, fmt.Sprintf(`INSERT INTO %s (collection_id, rid, field, terms) VALUES (?, ?, ?, ?)`, v.table),
			collection, rid, fv.name, strings.Join(terms, " "))
		if err != nil {
			return fmt.Errorf("fulltext: index document %d: %w", rid, err)
		}
	}
	return nil
}

// InsertBatch indexes a batch of documents inside the caller's
// transaction, stopping at the first failure.
func (v *View) InsertBatch(t *txn.Txn, collection uint64, batch []search.BatchEntry, meta *search.LinkMeta) error {
	for _, entry := range batch {
		if err := v.Insert(t, collection, entry.RID, entry.Doc, meta); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops one document's index entries.
func (v *View) Remove(t *txn.Txn, collection, rid uint64) error {
	err := v.exec(t, fmt.Sprintf(`DELETE FROM %s WHERE collection_id = ? AND rid = ?`, v.table), collection, rid)
	if err != nil {
		return fmt.Errorf("fulltext: remove document %d: %w", rid, err)
	}
	return nil
}

// Drop removes every index entry belonging to the collection.
func (v *View) Drop(collection uint64) error {
	_, err := v.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE collection_id = ?`, v.table), collection)
	if err != nil {
		return fmt.Errorf("fulltext: drop collection %d: %w", collection, err)
	}
	return nil
}

// Destroy drops the posting table. The view is unusable afterwards.
func (v *View) Destroy() error {
	if _, err := v.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, v.table)); err != nil {
		return fmt.Errorf("fulltext: destroy view %d: %w", v.id, err)
	}
	return nil
}

// RegisterLink records the link with the view. Registering a link twice
// is a no-op; the view never mutates the link.
func (v *View) RegisterLink(l *search.Link) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.links[l.ID()] = l
	return nil
}

// UnregisterLink removes a previously registered link.
func (v *View) UnregisterLink(l *search.Link) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.links, l.ID())
	return nil
}

// LinkCount returns the number of registered links.
func (v *View) LinkCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.links)
}

// Memory approximates the view's footprint as the byte length of the
// stored postings.
func (v *View) Memory() int {
	var n int64
	err := v.db.QueryRow(fmt.Sprintf(`SELECT COALESCE(SUM(LENGTH(terms) + LENGTH(field)), 0) FROM %s`, v.table)).Scan(&n)
	if err != nil {
		return 0
	}
	return int(n)
}

// Search returns documents whose indexed terms match the query.
func (v *View) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	return searchIndex(ctx, v.db, v.table, query, limit)
}

// fieldValue is one flattened, indexable field of a document. root is
// the top-level key and selects the analyzer chain; name is the stored
// field name and carries array positions and nested paths.
type fieldValue struct {
	root  string
	name  string
	value string
}

func collectFields(doc search.Document, meta *search.LinkMeta) []fieldValue {
	var out []fieldValue
	for key, raw := range doc {
		if !meta.IncludeAllFields {
			if _, ok := meta.Fields[key]; !ok {
				continue
			}
		}
		out = append(out, flatten(key, key, raw, meta.TrackListPositions)...)
	}
	return out
}

func flatten(root, name string, raw any, positions bool) []fieldValue {
	switch v := raw.(type) {
	case string:
		return []fieldValue{{root: root, name: name, value: v}}
	case float64:
		return []fieldValue{{root: root, name: name, value: strconv.FormatFloat(v, 'g', -1, 64)}}
	case int:
		return []fieldValue{{root: root, name: name, value: strconv.Itoa(v)}}
	case bool:
		return []fieldValue{{root: root, name: name, value: strconv.FormatBool(v)}}
	case []any:
		var out []fieldValue
		for i, el := range v {
			child := name
			if positions {
				child = fmt.Sprintf("%s[%d]", name, i)
			}
			out = append(out, flatten(root, child, el, positions)...)
		}
		return out
	case map[string]any:
		var out []fieldValue
		for k, el := range v {
			out = append(out, flatten(root, name+"."+k, el, positions)...)
		}
		return out
	default:
		// Nulls and unhandled shapes are not indexed.
		return nil
	}
}

func analyze(meta *search.LinkMeta, root, value string) ([]string, error) {
	var out []string
	for _, name := range meta.AnalyzersFor(root) {
		a, err := analyzer.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a.Tokens(value)...)
	}
	return out, nil
}
