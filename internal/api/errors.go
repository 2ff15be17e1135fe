// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/log"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

const (
	codeInvalidRequest = "invalid_request"
	codeInvalidProfile = "invalid_profile"
	codeNotFound       = "session_not_found"
	codeInvalidState   = "invalid_state"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, errCode, detail string) {
	writeJSON(w, code, ErrorResponse{Error: errCode, Detail: detail})
}

// statusFor maps a session error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrTargetNotFound), errors.Is(err, lifecycle.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrAlreadyStreaming),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrSessionStopped):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrConnectionFailed), errors.Is(err, lifecycle.ErrSourceUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeSessionError renders err as {error: code, detail: message}. 5xx
// details are logged but not echoed to the client.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.internal_error").
			Msg("request failed")
		detail = "internal server error"
	}
	writeProblem(w, status, lifecycle.Code(err), detail)
}
