// Package apperr defines the error taxonomy shared by gateways, stores, and the
// sync controller: network, validation, storage, and permission failures.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrLocationNotFound = errors.New("location not found")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCircuitOpen      = errors.New("circuit open")
	// ErrSuperseded is returned by a fetch whose result was discarded because a
	// newer fetch was requested before it completed.
	ErrSuperseded = errors.New("fetch superseded by a newer request")
)

// NetworkError reports a request that did not complete: transport failure,
// timeout, non-2xx status, or an undecodable body.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError reports a payload that decoded as JSON but lacks a required
// nested field. Shape lists the keys that were present, for diagnosis.
type ValidationError struct {
	Source string
	Field  string
	Shape  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s response missing required field %s", e.Source, e.Field)
}

// StorageError reports a key-value store read or write failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PermissionError reports that device location permission was denied.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	p := e.Permission
	if p == "" {
		p = "location"
	}
	return p + " permission denied"
}

// UserMessage returns the human-readable message shown for err. Network and
// validation failures get distinct wording.
func UserMessage(err error) string {
	var (
		netErr  *NetworkError
		valErr  *ValidationError
		stErr   *StorageError
		permErr *PermissionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return "weather data was incomplete"
	case errors.As(err, &permErr):
		return "location permission is required"
	case errors.As(err, &stErr):
		return "could not access saved data"
	case errors.Is(err, ErrSuperseded):
		return "request replaced by a newer one"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLocationNotFound):
		return "location not found"
	case errors.As(err, &netErr):
		return "could not load weather"
	case errors.Is(err, ErrInvalidInput):
		return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	default:
		return "could not load weather"
	}
}
