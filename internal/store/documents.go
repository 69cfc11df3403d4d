package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/txn"
)

// DocumentRow is one stored document.
type DocumentRow struct {
	RID      uint64
	Body     []byte
	Checksum string
}

// InsertDocument stores a document inside the caller's transaction and
// returns its revision id. Revision ids are monotonic across the whole
// engine.
func (db *DB) InsertDocument(t *txn.Txn, collectionID uint64, body []byte) (uint64, error) {
	res, err := t.Tx().ExecContext(t.Context(), `
		INSERT INTO documents (collection_id, body, checksum)
		VALUES (?, ?, ?)
	`, collectionID, string(body), checksum(body))
	if err != nil {
		return 0, fmt.Errorf("store: insert document: %w", err)
	}
	rid, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert document id: %w", err)
	}
	return uint64(rid), nil
}

// UpdateDocument replaces a document's body inside the caller's
// transaction.
func (db *DB) UpdateDocument(t *txn.Txn, collectionID, rid uint64, body []byte) error {
	res, err := t.Tx().ExecContext(t.Context(), `
		UPDATE documents SET body = ?, checksum = ?, updated_at = CURRENT_TIMESTAMP
		WHERE collection_id = ? AND rid = ?
	`, string(body), checksum(body), collectionID, rid)
	if err != nil {
		return fmt.Errorf("store: update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document inside the caller's transaction.
func (db *DB) DeleteDocument(t *txn.Txn, collectionID, rid uint64) error {
	res, err := t.Tx().ExecContext(t.Context(), `
		DELETE FROM documents WHERE collection_id = ? AND rid = ?
	`, collectionID, rid)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetDocument returns a stored document.
func (db *DB) GetDocument(ctx context.Context, collectionID, rid uint64) (*DocumentRow, error) {
	row := DocumentRow{RID: rid}
	var body string
	err := db.conn.QueryRowContext(ctx, `
		SELECT body, checksum FROM documents WHERE collection_id = ? AND rid = ?
	`, collectionID, rid).Scan(&body, &row.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	row.Body = []byte(body)
	return &row, nil
}

// DocumentCount returns the number of documents in a collection.
func (db *DB) DocumentCount(ctx context.Context, collectionID uint64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE collection_id = ?
	`, collectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: document count: %w", err)
	}
	return n, nil
}

// DocumentsAfter returns up to limit documents with rid greater than
// after, in rid order. Backfill walks a collection with it.
func (db *DB) DocumentsAfter(ctx context.Context, collectionID, after uint64, limit int) ([]DocumentRow, error) {
	if limit <= 0 {
		limit = 256
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT rid, body, checksum FROM documents
		WHERE collection_id = ? AND rid > ?
		ORDER BY rid
		LIMIT ?
	`, collectionID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("store: documents after %d: %w", after, err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var r DocumentRow
		var body string
		if err := rows.Scan(&r.RID, &body, &r.Checksum); err != nil {
			return nil, err
		}
		r.Body = []byte(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteDocuments removes every document in a collection. Used when
// the collection itself is dropped.
func (db *DB) DeleteDocuments(ctx context.Context, collectionID uint64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents WHERE collection_id = ?`, collectionID); err != nil {
		return fmt.Errorf("store: delete documents: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
