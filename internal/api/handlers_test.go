// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/health"
	"github.com/ManuGH/tgstream/internal/log"
)

var testNow = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

// fakeSessions is an in-memory Sessions with scripted Start failures.
type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*model.Snapshot
	order     []string
	startErr  error
	lastStart struct {
		chat, source string
		profile      model.Profile
	}
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*model.Snapshot{}}
}

func (f *fakeSessions) add(id string, status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &model.Snapshot{ID: id, TargetID: 100, Status: status, Profile: model.ProfileAuto, CreatedAt: testNow}
	f.order = append(f.order, id)
}

func (f *fakeSessions) Start(_ context.Context, chat, source string, profile model.Profile) (model.Snapshot, error) {
	f.mu.Lock()
	f.lastStart.chat, f.lastStart.source, f.lastStart.profile = chat, source, profile
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return model.Snapshot{}, err
	}
	id := fmt.Sprintf("s%d", len(f.order)+1)
	f.add(id, model.StatusStreaming)
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.sessions[id]
	snap.SourceURL = source
	snap.Profile = profile
	return *snap, nil
}

func (f *fakeSessions) Stop(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if ok {
		s.Status = model.StatusStopped
	}
	return ok
}

func (f *fakeSessions) setIf(id string, want, to model.Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != want {
		return false
	}
	s.Status = to
	return true
}

func (f *fakeSessions) Pause(_ context.Context, id string) bool {
	return f.setIf(id, model.StatusStreaming, model.StatusPaused)
}

func (f *fakeSessions) Resume(_ context.Context, id string) bool {
	return f.setIf(id, model.StatusPaused, model.StatusStreaming)
}

func (f *fakeSessions) Get(id string) (model.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return model.Snapshot{}, false
	}
	return *s, true
}

func (f *fakeSessions) list(keep func(model.Status) bool) []model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Snapshot
	for _, id := range f.order {
		if s := f.sessions[id]; keep(s.Status) {
			out = append(out, *s)
		}
	}
	return out
}

func (f *fakeSessions) List() []model.Snapshot {
	return f.list(func(model.Status) bool { return true })
}

func (f *fakeSessions) ListActive() []model.Snapshot {
	return f.list(model.Status.IsActive)
}

func newTestServer(t *testing.T, sessions Sessions) http.Handler {
	t.Helper()
	srv, err := New(Options{
		Sessions:       sessions,
		Health:         health.NewManager("test"),
		DefaultProfile: func() model.Profile { return model.Profile720p },
	})
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Health: health.NewManager("test")})
	assert.Error(t, err)
	_, err = New(Options{Sessions: newFakeSessions()})
	assert.Error(t, err)
}

func TestStartStream(t *testing.T) {
	fs := newFakeSessions()
	h := newTestServer(t, fs)

	rec := do(t, h, http.MethodPost, "/api/streams", `{"chat":"@news","source":"https://cdn.example/live.m3u8","profile":"480p"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/streams/s1", rec.Header().Get("Location"))

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	want := model.Snapshot{
		ID:        "s1",
		TargetID:  100,
		SourceURL: "https://cdn.example/live.m3u8",
		Status:    model.StatusStreaming,
		Profile:   model.Profile480p,
		CreatedAt: testNow,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "@news", fs.lastStart.chat)
}

func TestStartStream_DefaultProfile(t *testing.T) {
	fs := newFakeSessions()
	h := newTestServer(t, fs)

	rec := do(t, h, http.MethodPost, "/api/streams", `{"chat":"@news","source":"rtmp://origin/live"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.Profile720p, fs.lastStart.profile)
}

func TestStartStream_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"chat":`, codeInvalidRequest},
		{"missing chat", `{"source":"rtmp://origin/live"}`, codeInvalidRequest},
		{"blank source", `{"chat":"@news","source":"   "}`, codeInvalidRequest},
		{"invalid profile", `{"chat":"@news","source":"rtmp://origin/live","profile":"4k"}`, codeInvalidProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSessions()
			rec := do(t, newTestServer(t, fs), http.MethodPost, "/api/streams", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
			assert.Empty(t, fs.List(), "rejected requests must not reach the registry")
		})
	}
}

func TestStartStream_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: @nobody", lifecycle.ErrTargetNotFound), http.StatusNotFound, "target_not_found"},
		{fmt.Errorf("%w: target 100", lifecycle.ErrAlreadyStreaming), http.StatusConflict, "already_streaming"},
		{fmt.Errorf("%w: not an admin", lifecycle.ErrPermissionDenied), http.StatusForbidden, "permission_denied"},
		{fmt.Errorf("%w: bridge timeout", lifecycle.ErrConnectionFailed), http.StatusBadRequest, "connection_failed"},
		{fmt.Errorf("%w: yt-dlp exit 1", lifecycle.ErrSourceUnavailable), http.StatusBadRequest, "source_unavailable"},
		{fmt.Errorf("%w: ffmpeg", lifecycle.ErrBinaryNotFound), http.StatusInternalServerError, "binary_not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fs := newFakeSessions()
			fs.startErr = tt.err
			rec := do(t, newTestServer(t, fs), http.MethodPost, "/api/streams", `{"chat":"@news","source":"rtmp://o/l"}`)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			if tt.status >= 500 {
				assert.Equal(t, "internal server error", resp.Detail)
			} else {
				assert.Equal(t, tt.err.Error(), resp.Detail)
			}
		})
	}
}

func TestStartStream_InternalErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "info", Output: &buf, JSON: true})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	fs := newFakeSessions()
	fs.startErr = errors.New("registry exploded")
	rec := do(t, newTestServer(t, fs), http.MethodPost, "/api/streams", `{"chat":"@news","source":"rtmp://o/l"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "registry exploded")
	assert.Contains(t, buf.String(), `"event":"api.internal_error"`)
	assert.Contains(t, buf.String(), "registry exploded")
}

func TestListStreams(t *testing.T) {
	fs := newFakeSessions()
	fs.add("a1", model.StatusStreaming)
	fs.add("b2", model.StatusStopped)
	fs.add("c3", model.StatusPaused)
	h := newTestServer(t, fs)

	ids := func(rec *httptest.ResponseRecorder) ([]string, int) {
		var resp StreamListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		out := make([]string, 0, len(resp.Streams))
		for _, s := range resp.Streams {
			out = append(out, s.ID)
		}
		return out, resp.Count
	}

	rec := do(t, h, http.MethodGet, "/api/streams", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, count := ids(rec)
	assert.Equal(t, []string{"a1", "b2", "c3"}, got)
	assert.Equal(t, 3, count)

	rec = do(t, h, http.MethodGet, "/api/streams?active_only=true", "")
	got, count = ids(rec)
	assert.Equal(t, []string{"a1", "c3"}, got)
	assert.Equal(t, 2, count)

	rec = do(t, h, http.MethodGet, "/api/streams?active_only=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStreams_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestServer(t, newFakeSessions()), http.MethodGet, "/api/streams", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"streams":[],"count":0}`, rec.Body.String())
}

func TestGetAndStopStream(t *testing.T) {
	fs := newFakeSessions()
	fs.add("a1", model.StatusStreaming)
	h := newTestServer(t, fs)

	rec := do(t, h, http.MethodGet, "/api/streams/a1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"streaming"`)

	rec = do(t, h, http.MethodDelete, "/api/streams/a1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	snap, _ := fs.Get("a1")
	assert.Equal(t, model.StatusStopped, snap.Status)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = do(t, h, method, "/api/streams/zz9", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, codeNotFound, resp.Error)
		assert.Equal(t, "Stream not found: zz9", resp.Detail)
	}

	rec = do(t, h, http.MethodGet, "/api/streams/bad%20id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseResume(t *testing.T) {
	fs := newFakeSessions()
	fs.add("a1", model.StatusStreaming)
	h := newTestServer(t, fs)

	rec := do(t, h, http.MethodPost, "/api/streams/a1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paused"`)

	rec = do(t, h, http.MethodPost, "/api/streams/a1/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Stream not in pausable state: paused", decodeError(t, rec).Detail)

	rec = do(t, h, http.MethodPost, "/api/streams/a1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"streaming"`)

	rec = do(t, h, http.MethodPost, "/api/streams/a1/resume", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, codeInvalidState, resp.Error)
	assert.Equal(t, "Stream not paused: streaming", resp.Detail)

	rec = do(t, h, http.MethodPost, "/api/streams/nope/resume", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	fs := newFakeSessions()
	fs.add("a1", model.StatusStreaming)
	hm := health.NewManager("test")
	hm.SetStreamer(health.StreamerFunc(func() int { return len(fs.ListActive()) }))
	srv, err := New(Options{Sessions: fs, Health: hm})
	require.NoError(t, err)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ActiveStreams)
	assert.Equal(t, health.StatusDegraded, body.Status)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tgstream_http_request_duration_seconds")

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)

	rec = do(t, h, http.MethodPut, "/api/streams", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitedRequestsGetJSON429(t *testing.T) {
	srv, err := New(Options{
		Sessions:   newFakeSessions(),
		Health:     health.NewManager("test"),
		RateLimit:  2,
		RateWindow: time.Minute,
	})
	require.NoError(t, err)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/streams", "").Code)
	}
	rec := do(t, h, http.MethodGet, "/api/streams", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Error)
}
