package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTaskActive indicates the target already has a pending or running task
	ErrTaskActive = errors.New("task already active for target")

	// ErrIllegalTransition indicates a lifecycle event is not allowed from the current status
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrStatusConflict indicates the item status changed underneath a compare-and-set write
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrCancelled indicates cooperative cancellation was observed
	ErrCancelled = errors.New("cancelled")

	// ErrNoExtractor indicates no extractor is registered for an item kind
	ErrNoExtractor = errors.New("no extractor registered")

	// ErrExtractionFailed indicates the extractor could not produce text
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrIndexingFailed indicates chunks could not be handed to the index
	ErrIndexingFailed = errors.New("indexing failed")

	// ErrWorkerCrashed indicates a job handler panicked before reporting an outcome
	ErrWorkerCrashed = errors.New("worker crashed")

	// ErrWorkerLost indicates a running task stopped heartbeating
	ErrWorkerLost = errors.New("worker lost")

	// ErrServiceUnavailable indicates a downstream service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
