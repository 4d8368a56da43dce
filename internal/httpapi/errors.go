package httpapi

import (
	"context"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"llamactx/internal/inference"
	"llamactx/internal/manager"
	"llamactx/internal/snapshot"
	"llamactx/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// httpError is a plain status-carrying error for handler validation failures.
type httpError struct {
	status int
	msg    string
}

func (e httpError) Error() string   { return e.msg }
func (e httpError) StatusCode() int { return e.status }

func badRequest(msg string) error { return httpError{status: http.StatusBadRequest, msg: msg} }

// statusFor maps service errors to an HTTP status.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case manager.IsModelNotFound(err), manager.IsSessionNotFound(err), errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err), manager.IsBudgetExceeded(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, manager.ErrSnapshotsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, snapshot.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrChecksum), errors.Is(err, snapshot.ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch inference.CodeOf(err) {
	case inference.CodeEmptyPrompt, inference.CodeInvalidArgument:
		return http.StatusBadRequest
	case inference.CodeUnconfigured, inference.CodeBusy, inference.CodeNotReady:
		return http.StatusConflict
	case inference.CodeCorrupt, inference.CodeTokenizationFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError writes err as a JSON payload with its mapped status.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONErrorKind(w, status, err.Error(), string(inference.CodeOf(err)))
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorKind(w, status, msg, "")
}

func writeJSONErrorKind(w http.ResponseWriter, status int, msg, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
