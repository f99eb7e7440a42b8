package apperr

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics and responses.
type ErrorCategory string

// Error category constants used as metric labels (syncOutcomesTotal, weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryStorage          ErrorCategory = "storage"
	ErrorCategoryPermission       ErrorCategory = "permission"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategorySuperseded       ErrorCategory = "superseded"
	ErrorCategoryInvalidInput     ErrorCategory = "invalid_input"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var (
		valErr  *ValidationError
		stErr   *StorageError
		permErr *PermissionError
		netErr  *NetworkError
	)
	switch {
	case errors.Is(err, ErrSuperseded):
		return ErrorCategorySuperseded
	case errors.As(err, &valErr):
		return ErrorCategoryValidation
	case errors.As(err, &permErr):
		return ErrorCategoryPermission
	case errors.As(err, &stErr):
		return ErrorCategoryStorage
	case errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrInvalidInput):
		return ErrorCategoryInvalidInput
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrMalformedPayload):
		return ErrorCategoryParsing
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.As(err, &netErr):
		return ErrorCategoryNetwork
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}

// IsNetwork reports whether err belongs to the network family: transport,
// timeout, rate limiting, open circuit, upstream status, or undecodable payload.
func IsNetwork(err error) bool {
	switch CategorizeError(err) {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimited, ErrorCategoryCircuitOpen,
		ErrorCategoryUpstream5xx, ErrorCategoryParsing:
		return true
	}
	return false
}
