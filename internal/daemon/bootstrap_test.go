// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	sessionmgr "github.com/ManuGH/tgstream/internal/domain/session/manager"
	"github.com/ManuGH/tgstream/internal/domain/session/manager/testkit"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/health"
	"github.com/ManuGH/tgstream/internal/pipeline/bus"
)

const newsTarget = int64(100)

func dryRunConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.API.Host = "127.0.0.1"
	cfg.Reconnect.MinDelay = 10 * time.Millisecond
	cfg.Reconnect.MaxDelay = 20 * time.Millisecond
	return cfg
}

func buildDryRun(t *testing.T, cfg config.AppConfig) *Components {
	t.Helper()
	comps, err := Build(context.Background(), cfg, BuildOptions{
		Version:     "test",
		DryRun:      true,
		StubNames:   map[string]int64{"@news": newsTarget},
		Transcoders: testkit.NewFactory(),
	})
	require.NoError(t, err)
	return comps
}

func TestReconnectPolicy(t *testing.T) {
	got := ReconnectPolicy(config.Defaults().Reconnect)
	assert.Equal(t, sessionmgr.DefaultPolicy(), got)
}

func TestListenAddr(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, "0.0.0.0:8080", ListenAddr(cfg))
	cfg.API.Host = "::1"
	assert.Equal(t, "[::1]:8080", ListenAddr(cfg))
}

func TestBuild_DryRunServesStreams(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	comps := buildDryRun(t, dryRunConfig())
	assert.Nil(t, comps.Bridge)
	h := comps.API.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/streams",
		strings.NewReader(`{"chat":"@news","source":"https://cdn.example/live.m3u8"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.StatusStreaming, snap.Status)
	assert.Equal(t, newsTarget, snap.TargetID)
	assert.Equal(t, model.ProfileAuto, snap.Profile)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/streams",
		strings.NewReader(`{"chat":"100","source":"https://cdn.example/other.m3u8"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code, "second stream on the same target")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var hr health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hr))
	assert.True(t, hr.TelegramConnected)
	assert.Equal(t, 1, hr.ActiveStreams)

	require.NoError(t, comps.Close(context.Background()))
	got, ok := comps.Registry.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusStopped, got.Status)

	assert.NoError(t, comps.Close(context.Background()), "Close is idempotent")
}

func TestBuild_DefaultProfile(t *testing.T) {
	cfg := dryRunConfig()
	cfg.API.DefaultProfile = "720p"
	comps := buildDryRun(t, cfg)
	t.Cleanup(func() { _ = comps.Close(context.Background()) })

	assert.Equal(t, model.Profile720p, comps.DefaultProfile())
	comps.SetDefaultProfile("4k")
	assert.Equal(t, model.Profile720p, comps.DefaultProfile(), "invalid names are ignored")
	comps.SetDefaultProfile("")
	assert.Equal(t, model.ProfileAuto, comps.DefaultProfile())
}

func TestBuild_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := dryRunConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Bus.Backend = config.BusRedis

	comps := buildDryRun(t, cfg)
	t.Cleanup(func() { _ = comps.Close(context.Background()) })
	assert.IsType(t, &bus.RedisBus{}, comps.Bus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := comps.Bus.Subscribe(ctx, lifecycle.TopicSessions)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	snap, err := comps.Registry.Start(ctx, "@news", "https://cdn.example/live.m3u8", model.ProfileAuto)
	require.NoError(t, err)

	select {
	case ev := <-sub.C():
		assert.Equal(t, snap.ID, ev.SessionID)
	case <-ctx.Done():
		t.Fatal("no lifecycle event over redis")
	}

	resp := comps.Health.Health(ctx, true)
	assert.Equal(t, health.StatusHealthy, resp.Checks["redis"].Status)
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := dryRunConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := Build(context.Background(), cfg, BuildOptions{DryRun: true})
	assert.ErrorContains(t, err, "redis connection failed")
}

func TestBuild_RequiresBridgeURL(t *testing.T) {
	_, err := Build(context.Background(), dryRunConfig(), BuildOptions{})
	assert.ErrorContains(t, err, "bridge")
}

func TestBuild_BridgeHealthChecks(t *testing.T) {
	bridgeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/health" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer bridgeSrv.Close()

	cfg := dryRunConfig()
	cfg.Bridge.URL = bridgeSrv.URL
	comps, err := Build(context.Background(), cfg, BuildOptions{Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = comps.Close(context.Background()) })
	require.NotNil(t, comps.Bridge)

	resp := comps.Health.Health(context.Background(), true)
	assert.True(t, resp.TelegramConnected)
	assert.Equal(t, health.StatusHealthy, resp.Checks["bridge"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Checks["bridge_breaker"].Status)
}
