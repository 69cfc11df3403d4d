package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Link protocol errors.
	ErrCollectionNotLoaded = errors.New("collection not loaded")
	ErrBadParameter        = errors.New("bad parameter")
	ErrViewNotFound        = errors.New("view not found")
	ErrBadMetadata         = errors.New("bad metadata")
)
