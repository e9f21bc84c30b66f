package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"sessiond/internal/registry"
	"sessiond/internal/session"
	"sessiond/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// badRequest marks request validation failures.
type badRequest struct{ msg string }

func (e badRequest) Error() string   { return e.msg }
func (e badRequest) StatusCode() int { return http.StatusBadRequest }

// statusFor maps controller and registry errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, session.ErrAlreadyGenerating):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrSessionUnavailable):
		return http.StatusServiceUnavailable
	case session.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case session.IsFileMissing(err), registry.IsNotFound(err):
		return http.StatusNotFound
	case session.IsFileTooSmall(err):
		return http.StatusUnprocessableEntity
	case session.IsEngineRejected(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
