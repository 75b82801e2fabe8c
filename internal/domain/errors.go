package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceAPIFailure is returned when the source catalog API request fails
	ErrSourceAPIFailure = errors.New("source API request failed")

	// ErrLookupUnavailable is returned when every existence lookup strategy failed
	ErrLookupUnavailable = errors.New("existing product lookup unavailable")

	// ErrStoreUnavailable is returned when the destination store cannot be reached
	ErrStoreUnavailable = errors.New("destination store unavailable")

	// ErrHandleConflict is returned when a create collides with an existing handle
	ErrHandleConflict = errors.New("product handle already exists")

	// ErrProductNotFound is returned when an update references an unknown product id
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrSyncInProgress is returned when a sync is triggered while one is running
	ErrSyncInProgress = errors.New("sync already in progress")
)

// FetchError describes a failed source API request. Transient errors
// (rate limiting, gateway failures, network errors) are retried by the
// client; the error surfaces only once the retry budget is exhausted.
type FetchError struct {
	Status    int
	Message   string
	transient bool
	cause     error
}

// NewFetchError builds a FetchError for an HTTP status response
func NewFetchError(status int, message string, transient bool) *FetchError {
	return &FetchError{Status: status, Message: message, transient: transient}
}

// NewNetworkError builds a transient FetchError from a transport failure
func NewNetworkError(cause error) *FetchError {
	return &FetchError{Message: cause.Error(), transient: true, cause: cause}
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", ErrSourceAPIFailure, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrSourceAPIFailure, e.Status, e.Message)
}

// Transient reports whether retrying the request may succeed
func (e *FetchError) Transient() bool {
	return e.transient
}

// Unwrap exposes ErrSourceAPIFailure and the transport cause, if any
func (e *FetchError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrSourceAPIFailure, e.cause}
	}
	return []error{ErrSourceAPIFailure}
}
