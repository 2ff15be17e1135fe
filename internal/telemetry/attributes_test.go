// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("GET", "/api/streams", "/api/streams?", 200))

	assert.Len(t, m, 4)
	assert.Equal(t, "GET", m[HTTPMethodKey].AsString())
	assert.Equal(t, "/api/streams", m[HTTPRouteKey].AsString())
	assert.Equal(t, int64(200), m[HTTPStatusCodeKey].AsInt64())
}

func TestSessionAttributes(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		profile   string
		source    string
		wantLen   int
	}{
		{name: "all fields", sessionID: "a1b2c3d4", profile: "720p", source: "hls", wantLen: 4},
		{name: "before id assigned", profile: "auto", source: "rtmp", wantLen: 3},
		{name: "target only", wantLen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := SessionAttributes(tt.sessionID, -1001234567890, tt.profile, tt.source)
			assert.Len(t, attrs, tt.wantLen)
			m := attrMap(attrs)
			assert.Equal(t, int64(-1001234567890), m[SessionTargetKey].AsInt64())
			if tt.sessionID != "" {
				assert.Equal(t, tt.sessionID, m[SessionIDKey].AsString())
			}
		})
	}
}

func TestReconnectAndErrorAttributes(t *testing.T) {
	m := attrMap(ReconnectAttributes(3, true))
	assert.Equal(t, int64(3), m[SessionAttemptKey].AsInt64())
	assert.True(t, m[TranscoderUsedKey].AsBool())

	m = attrMap(ErrorAttributes("connection_failed"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "connection_failed", m[ErrorTypeKey].AsString())
}
