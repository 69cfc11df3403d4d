//go:build !sqlite_fts5

package fulltext

import (
	"context"
	"database/sql"
	"fmt"
)

func createIndexTable(conn *sql.DB, table string) error {
	_, err := conn.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			collection_id INTEGER NOT NULL,
			rid INTEGER NOT NULL,
			field TEXT NOT NULL,
			terms TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %s_doc ON %s (collection_id, rid);
	`, table, table, table))
	return err
}

// searchIndex performs a LIKE-based scan (fallback when FTS5 is not
// compiled in).
func searchIndex(ctx context.Context, conn *sql.DB, table, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT collection_id, rid, field, substr(terms, 1, 200)
		FROM %s
		WHERE terms LIKE ?
		ORDER BY collection_id, rid
		LIMIT ?
	`, table), like, limit)
	if err != nil {
		return nil, fmt.Errorf("fulltext: search: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Collection, &h.RID, &h.Field, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
