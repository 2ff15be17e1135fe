// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/config"
	sessionmgr "github.com/ManuGH/tgstream/internal/domain/session/manager"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
)

func newTestApp(t *testing.T, holder *config.Holder, cfg config.AppConfig) (*App, *Components, string) {
	t.Helper()
	comps := buildDryRun(t, cfg)
	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{ListenAddr: addr, ShutdownTimeout: 2 * time.Second}, Deps{
		Logger: log.WithComponent("test"),
		Server: comps.API.HTTPServer(addr),
	})
	require.NoError(t, err)
	app := NewApp(log.WithComponent("test"), mgr, holder, comps)
	app.reloadSignal = nil
	return app, comps, addr
}

func TestApp_RequiresCollaborators(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)

	mgr, err := NewManager(ServerConfig{}, testDeps())
	require.NoError(t, err)
	app = NewApp(log.WithComponent("test"), mgr, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingComponents)
}

func TestApp_RunUntilCancelled(t *testing.T) {
	app, comps, addr := newTestApp(t, nil, dryRunConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	require.NoError(t, waitForListen(addr, 2*time.Second))
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = comps.Registry.Start(ctx, "@news", "https://cdn.example/live.m3u8", model.ProfileAuto)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Empty(t, comps.Registry.ListActive(), "sessions are stopped on shutdown")
	_, err = comps.Registry.Start(context.Background(), "@news", "https://cdn.example/live.m3u8", model.ProfileAuto)
	assert.ErrorIs(t, err, sessionmgr.ErrClosed)
}

func TestApp_ApplyReloadedConfig(t *testing.T) {
	app, comps, _ := newTestApp(t, nil, dryRunConfig())
	t.Cleanup(func() { _ = comps.Close(context.Background()) })

	cfg := dryRunConfig()
	cfg.Reconnect.MaxAttempts = 3
	cfg.API.DefaultProfile = "1080p"
	cfg.Health.Interval = 5 * time.Second
	app.apply(cfg)

	assert.Equal(t, 3, comps.Reconnector.Policy().MaxAttempts)
	assert.Equal(t, model.Profile1080p, comps.DefaultProfile())
	assert.Equal(t, 5*time.Second, app.monitorInterval)

	cfg.API.DefaultProfile = "bogus"
	app.apply(cfg)
	assert.Equal(t, model.Profile1080p, comps.DefaultProfile())
}

func TestApp_ReloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(body string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("reconnect:\n  maxAttempts: 4\n")

	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(initial, loader)

	app, comps, addr := newTestApp(t, holder, dryRunConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()
	require.NoError(t, waitForListen(addr, 2*time.Second))

	write("reconnect:\n  maxAttempts: 7\napi:\n  defaultProfile: 480p\n")
	require.NoError(t, holder.Reload(ctx))

	require.Eventually(t, func() bool {
		return comps.Reconnector.Policy().MaxAttempts == 7
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.Profile480p, comps.DefaultProfile())

	write("reconnect:\n  maxAttempts: 0\n")
	assert.Error(t, holder.Reload(ctx), "invalid config is rejected")
	assert.Equal(t, 7, holder.Get().Reconnect.MaxAttempts)

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
