//go:build sqlite_fts5

package fulltext

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func createIndexTable(conn *sql.DB, table string) error {
	_, err := conn.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
			terms,
			collection_id UNINDEXED,
			rid UNINDEXED,
			field UNINDEXED,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`, table))
	return err
}

// searchIndex runs an FTS5 match. The query is passed as a single
// string literal so user input cannot inject match syntax.
func searchIndex(ctx context.Context, conn *sql.DB, table, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	literal := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT collection_id,
		       rid,
		       field,
		       snippet(%s, 0, '<b>', '</b>', '...', 16)
		FROM %s
		WHERE %s MATCH ?
		ORDER BY rank
		LIMIT ?
	`, table, table, table), literal, limit)
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
