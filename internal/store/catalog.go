package store

import (
	"context"
	"fmt"

	"github.com/skarde/beacon/internal/apperr"
)

// Entity kinds stored in the catalog table.
const (
	KindCollection = "collection"
	KindView       = "view"
	KindLink       = "link"
)

// CatalogRow is one persisted catalog entry. Links carry the owning
// collection in ParentID; definitions are stored as JSON.
type CatalogRow struct {
	ID         uint64
	Kind       string
	GUID       string
	Name       string
	ParentID   uint64
	Definition string
}

// InsertCatalogRow persists a new catalog entry.
func (db *DB) InsertCatalogRow(ctx context.Context, row CatalogRow) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO catalog (id, kind, guid, name, parent_id, definition)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.ID, row.Kind, row.GUID, row.Name, row.ParentID, row.Definition)
	if err != nil {
		return fmt.Errorf("store: insert catalog row: %w", err)
	}
	return nil
}

// DeleteCatalogRow removes a catalog entry by id.
func (db *DB) DeleteCatalogRow(ctx context.Context, id uint64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM catalog WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete catalog row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CatalogRows returns every catalog entry in id order, so collections
// restore before the views and links that reference them.
func (db *DB) CatalogRows(ctx context.Context) ([]CatalogRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, kind, guid, name, parent_id, definition
		FROM catalog
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: catalog rows: %w", err)
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var r CatalogRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.GUID, &r.Name, &r.ParentID, &r.Definition); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MaxCatalogID returns the highest allocated entity id, zero when the
// catalog is empty.
func (db *DB) MaxCatalogID(ctx context.Context) (uint64, error) {
	var id uint64
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM catalog`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: max catalog id: %w", err)
	}
	return id, nil
}
