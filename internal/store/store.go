// Package store provides the SQLite-backed engine database: the
// catalog of collections, views, and links, and the document rows
// themselves.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skarde/beacon/internal/txn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS catalog (
	id         INTEGER PRIMARY KEY,
	kind       TEXT NOT NULL,
	guid       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	parent_id  INTEGER NOT NULL DEFAULT 0,
	definition TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_catalog_kind ON catalog(kind);
CREATE INDEX IF NOT EXISTS idx_catalog_parent ON catalog(parent_id);

CREATE TABLE IF NOT EXISTS documents (
	rid           INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL,
	body          TEXT NOT NULL,
	checksum      TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
`

// DB wraps a sql.DB with engine-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Conn returns the underlying connection. Views create their index
// tables on the same database.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Begin starts the transaction shared by a document write and its
// index updates.
func (db *DB) Begin(ctx context.Context) (*txn.Txn, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return txn.New(ctx, tx), nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
