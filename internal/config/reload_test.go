// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestHolder(t *testing.T, body string) (*Holder, string) {
	t.Helper()
	path := writeConfig(t, t.TempDir(), "config.yaml", body)
	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewHolder(cfg, loader), path
}

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	h, path := newTestHolder(t, "reconnect:\n  maxAttempts: 3\n")
	assert.Equal(t, 3, h.Get().Reconnect.MaxAttempts)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("reconnect:\n  maxAttempts: 7\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, 7, h.Get().Reconnect.MaxAttempts)
	select {
	case got := <-ch:
		assert.Equal(t, 7, got.Reconnect.MaxAttempts)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	h, path := newTestHolder(t, "log:\n  level: warn\n")

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))

	assert.Equal(t, "warn", h.Get().Log.Level)
	assert.Empty(t, ch)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	h, _ := newTestHolder(t, "")
	ch := make(chan AppConfig)
	h.RegisterListener(ch)

	done := make(chan error, 1)
	go func() { done <- h.Reload(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on an unbuffered listener")
	}
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, path := newTestHolder(t, "health:\n  interval: 30s\n")
	ch := make(chan AppConfig, 4)
	h.RegisterListener(ch)

	require.NoError(t, h.StartWatcher(context.Background()))
	require.NoError(t, h.StartWatcher(context.Background()), "second start is a no-op")

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("health:\n  interval: 45s\n"), 0o600))

	select {
	case got := <-ch:
		assert.Equal(t, 45*time.Second, got.Health.Interval)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}

	h.Stop()
	h.Stop()
	assert.Equal(t, 45*time.Second, h.Get().Health.Interval)
}

func TestHolder_WatcherStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, _ := newTestHolder(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))
	cancel()
	h.Stop()
}

func TestHolder_WatcherWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "test"))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
