// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Session attributes
	SessionIDKey      = "session.id"
	SessionTargetKey  = "session.target_id"
	SessionProfileKey = "session.profile"
	SessionSourceKey  = "session.source_type"
	SessionAttemptKey = "session.reconnect_attempt"
	SessionStatusKey  = "session.status"
	TranscoderUsedKey = "transcoder.enabled"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes describes a session on a span. Empty strings are
// omitted.
func SessionAttributes(sessionID string, targetID int64, profile, sourceType string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	attrs = append(attrs, attribute.Int64(SessionTargetKey, targetID))
	if profile != "" {
		attrs = append(attrs, attribute.String(SessionProfileKey, profile))
	}
	if sourceType != "" {
		attrs = append(attrs, attribute.String(SessionSourceKey, sourceType))
	}
	return attrs
}

// ReconnectAttributes marks a reconnect attempt.
func ReconnectAttributes(attempt int, transcoder bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SessionAttemptKey, attempt),
		attribute.Bool(TranscoderUsedKey, transcoder),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
