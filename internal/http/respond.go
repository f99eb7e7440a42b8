package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

// errorBody is the payload of every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{code,message,requestId}}. requestId is the
// correlation id when the request carries one.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message, RequestID: observability.CorrelationID(r.Context())},
	})
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch cat := apperr.CategorizeError(err); cat {
	case apperr.ErrorCategorySuperseded:
		return http.StatusConflict, "SUPERSEDED"
	case apperr.ErrorCategoryValidation:
		return http.StatusBadGateway, "INVALID_UPSTREAM_PAYLOAD"
	case apperr.ErrorCategoryPermission:
		return http.StatusForbidden, "PERMISSION_DENIED"
	case apperr.ErrorCategoryStorage:
		return http.StatusInternalServerError, "STORAGE_ERROR"
	case apperr.ErrorCategoryLocationNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.ErrorCategoryInvalidInput:
		return http.StatusBadRequest, "INVALID_INPUT"
	default:
		if apperr.IsNetwork(err) {
			return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
		}
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// errorPayload renders err for embedding in a success response.
func errorPayload(r *http.Request, err error) *errorBody {
	if err == nil {
		return nil
	}
	_, code := statusFor(err)
	return &errorBody{Code: code, Message: apperr.UserMessage(err), RequestID: observability.CorrelationID(r.Context())}
}

// writeServiceError writes the response for err and logs it with the request logger.
// Server-side failures log at WARN, caller mistakes at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	writeError(w, r, status, code, apperr.UserMessage(err))

	log := observability.LoggerFrom(r.Context(), logger)
	fields := []zap.Field{
		zap.String("code", code),
		zap.String("category", string(apperr.CategorizeError(err))),
		zap.Error(err),
	}
	if status >= 500 {
		log.Warn("request failed", fields...)
		return
	}
	log.Debug("request rejected", fields...)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
