package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested corpus or document was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDocumentReference indicates the numeric artifacts reference a
	// document the corpus does not know; the request must be aborted
	ErrUnknownDocumentReference = errors.New("unknown document reference")

	// ErrRemoteWorkerFailure indicates a remote computation reported failure
	ErrRemoteWorkerFailure = errors.New("remote worker failure")

	// ErrStaleLock indicates a status lock outlived the staleness threshold
	ErrStaleLock = errors.New("stale lock")

	// ErrCorpusFull indicates the corpus holds as many texts as allowed
	ErrCorpusFull = errors.New("corpus is full")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
