// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"context"
	"errors"
)

// Session error taxonomy. Adapters wrap these with fmt.Errorf("%w: ...")
// so callers classify with errors.Is.
var (
	ErrTargetNotFound        = errors.New("target not found")
	ErrAlreadyStreaming      = errors.New("already streaming")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrConnectionFailed      = errors.New("connection failed")
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrBinaryNotFound        = errors.New("transcoder binary not found")
	ErrProcessStartFailed    = errors.New("transcoder process start failed")
	ErrReconnectionExhausted = errors.New("reconnection exhausted")

	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("invalid session state")
	ErrSessionStopped  = errors.New("session stopped")
)

// Retryable reports whether a reconnect attempt that failed with err may be
// tried again. Only connection and source failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrSourceUnavailable)
}

// Code returns a stable snake_case label for err, used as a metric label
// and in API error bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, ErrAlreadyStreaming):
		return "already_streaming"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrReconnectionExhausted):
		return "reconnection_exhausted"
	case errors.Is(err, ErrBinaryNotFound):
		return "binary_not_found"
	case errors.Is(err, ErrProcessStartFailed):
		return "process_start_failed"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrSessionStopped):
		return "session_stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
