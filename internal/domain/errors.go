package domain

import "errors"

var (
	// ErrNotFound signals that a referenced story or job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState signals an operation against a story or job whose
	// current state does not admit it.
	ErrInvalidState = errors.New("invalid state")
	// ErrContentBusy signals that another job for the same story is already
	// processing; the caller should redeliver later.
	ErrContentBusy = errors.New("content busy")
	// ErrContentMissing signals a job whose story record is absent. This is a
	// contract violation, surfaced and never retried.
	ErrContentMissing = errors.New("content missing")
	// ErrBackendFailure signals that a generation backend failed or returned
	// malformed output.
	ErrBackendFailure = errors.New("backend failure")
)
