// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/cache"
	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
)

// fakeYtdlp writes a script that appends one line to a call log per run.
func fakeYtdlp(t *testing.T, body string) (bin, calls string) {
	t.Helper()
	dir := t.TempDir()
	calls = filepath.Join(dir, "calls")
	bin = filepath.Join(dir, "yt-dlp")
	script := "#!/bin/sh\necho \"$@\" >> " + calls + "\n" + body + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, calls
}

func callCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestResolveFirstNonEmptyLine(t *testing.T) {
	bin, calls := fakeYtdlp(t, `printf '\nhttps://cdn.example/v.mp4\nhttps://cdn.example/a.m4a\n'`)
	r := New(Config{BinPath: bin}, nil)

	got, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/v.mp4", got)

	data, err := os.ReadFile(calls)
	require.NoError(t, err)
	assert.Equal(t, "--get-url -f best[ext=mp4]/best --no-playlist https://youtube.com/watch?v=abc\n", string(data))
}

func TestResolveUsesCache(t *testing.T) {
	bin, calls := fakeYtdlp(t, `echo https://cdn.example/v.mp4`)
	c := cache.NewMemory(0)
	defer c.Close()
	r := New(Config{BinPath: bin, CacheTTL: time.Minute}, c)

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), "https://youtu.be/abc")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/v.mp4", got)
	}
	assert.Equal(t, 1, callCount(t, calls))
	assert.Equal(t, int64(2), c.Stats().Hits)
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		timeout time.Duration
		want    string
	}{
		{name: "non-zero exit", body: "echo 'ERROR: video unavailable' >&2; exit 1", want: "video unavailable"},
		{name: "empty output", body: "exit 0", want: "no stream URL found"},
		{name: "timeout", body: "exec sleep 5", timeout: 100 * time.Millisecond, want: "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, _ := fakeYtdlp(t, tt.body)
			r := New(Config{BinPath: bin, Timeout: tt.timeout}, nil)

			_, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=x")
			require.ErrorIs(t, err, lifecycle.ErrSourceUnavailable)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveBinaryMissing(t *testing.T) {
	r := New(Config{BinPath: filepath.Join(t.TempDir(), "yt-dlp")}, nil)
	_, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=x")
	require.ErrorIs(t, err, lifecycle.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "not found")
}

func TestFailuresAreNotCached(t *testing.T) {
	bin, calls := fakeYtdlp(t, "exit 2")
	c := cache.NewMemory(0)
	defer c.Close()
	r := New(Config{BinPath: bin}, c)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=0")
		require.Error(t, err)
	}
	assert.Equal(t, 2, callCount(t, calls))
}

func TestAvailable(t *testing.T) {
	bin, _ := fakeYtdlp(t, "exit 0")
	path, ok := Available(bin)
	assert.True(t, ok)
	assert.Equal(t, bin, path)

	_, ok = Available(filepath.Join(t.TempDir(), "missing"))
	assert.False(t, ok)
}
