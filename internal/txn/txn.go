// Package txn carries the caller-owned transaction that a document
// write and its search index updates share, so both commit or roll
// back together.
package txn

import (
	"context"
	"database/sql"
	"fmt"
)

// Txn wraps a database transaction together with its context.
type Txn struct {
	ctx context.Context
	tx  *sql.Tx
}

// New wraps tx with ctx. A nil ctx falls back to context.Background.
func New(ctx context.Context, tx *sql.Tx) *Txn {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Txn{ctx: ctx, tx: tx}
}

// Context returns the context the transaction was started with.
func (t *Txn) Context() context.Context { return t.ctx }

// Tx returns the underlying database transaction.
func (t *Txn) Tx() *sql.Tx { return t.tx }

// Commit commits the underlying transaction.
func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}
	return nil
}

// Rollback rolls the underlying transaction back. Rolling back after a
// commit is a no-op.
func (t *Txn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("txn: rollback: %w", err)
	}
	return nil
}
