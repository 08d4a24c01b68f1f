package service

import "errors"

// Error classes surfaced by the workflow API. Handlers map them to HTTP
// status codes with errors.Is.
var (
	// ErrInvalidID means the identifier was malformed (not a positive integer).
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNotFound means no article exists with the given id.
	ErrNotFound = errors.New("article not found")

	// ErrNotDeleted means restore was called on an article that is not in
	// the recycle bin.
	ErrNotDeleted = errors.New("article is not deleted")

	// ErrAlreadyDeleted means soft-delete was called on an article already
	// in the recycle bin.
	ErrAlreadyDeleted = errors.New("article already deleted")

	// ErrConflict means the operation lost a concurrent-write race or the
	// article is not in a state that allows the transition. Retryable.
	ErrConflict = errors.New("conflict")

	// ErrForbidden means the acting role lacks the capability.
	ErrForbidden = errors.New("forbidden")
)
