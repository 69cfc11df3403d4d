// Package task runs the engine's background jobs and carries the
// completion status of asynchronous batch operations.
package task

import (
	"context"
	"sync"

	"github.com/skarde/beacon/internal/search"
)

// Status collects the outcome of one asynchronous operation. Only the
// first reported outcome counts; later reports are dropped.
type Status struct {
	once sync.Once
	done chan struct{}
	err  error
}

var _ search.StatusSink = (*Status)(nil)

// NewStatus returns an unresolved status.
func NewStatus() *Status {
	return &Status{done: make(chan struct{})}
}

// SetStatus records the outcome; nil means success.
func (s *Status) SetStatus(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Done is closed once the outcome is in.
func (s *Status) Done() <-chan struct{} { return s.done }

// Err returns the recorded outcome, or nil while unresolved.
func (s *Status) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is in or ctx is done, and returns the
// outcome or the context's error.
func (s *Status) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
