// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// fakeBinary writes an executable shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func hlsSource() model.StreamSource {
	return model.StreamSource{URL: "https://example.com/live.m3u8", Kind: model.SourceHLS}
}

func collect(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return buf.Bytes()
			}
			buf.Write(chunk)
		case <-timeout:
			t.Fatal("timed out waiting for chunk channel to close")
		}
	}
}

func TestProcessStreamsStdout(t *testing.T) {
	bin := fakeBinary(t, `printf 'mpegts-payload'; echo 'warning: something' >&2`)
	p := NewProcess(Config{BinPath: bin, ChunkSize: 4}, hlsSource(), model.Profile720p)

	require.NoError(t, p.Start(context.Background()))
	data := collect(t, p.ReadChunks(context.Background()))
	assert.Equal(t, "mpegts-payload", string(data))

	require.Eventually(t, func() bool { return !p.IsRunning() }, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, p.ExitErr())
	assert.Equal(t, []string{"warning: something"}, p.Stderr(5))
	assert.NoError(t, p.Stop())
}

func TestProcessBinaryNotFound(t *testing.T) {
	p := NewProcess(Config{BinPath: filepath.Join(t.TempDir(), "missing")}, hlsSource(), model.ProfileAuto)
	err := p.Start(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrBinaryNotFound)
	assert.False(t, p.IsRunning())
}

func TestProcessStopTerminatesGroup(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 30")
	p := NewProcess(Config{BinPath: bin, StopGrace: 2 * time.Second}, hlsSource(), model.ProfileAuto)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	chunks := p.ReadChunks(context.Background())

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Empty(t, collect(t, chunks))

	require.NoError(t, p.Stop(), "second stop is a no-op")
}

func TestProcessStartTwiceFails(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 30")
	p := NewProcess(Config{BinPath: bin}, hlsSource(), model.ProfileAuto)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })

	assert.ErrorIs(t, p.Start(context.Background()), lifecycle.ErrProcessStartFailed)
}

func TestProcessStartAfterStopFails(t *testing.T) {
	p := NewProcess(Config{BinPath: fakeBinary(t, "exit 0")}, hlsSource(), model.ProfileAuto)
	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Start(context.Background()), lifecycle.ErrProcessStartFailed)
}

func TestProcessContextCancelStops(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 30")
	p := NewProcess(Config{BinPath: bin, StopGrace: 2 * time.Second}, hlsSource(), model.ProfileAuto)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !p.IsRunning() }, 5*time.Second, 10*time.Millisecond)
}

func TestReadChunksOnlyOnce(t *testing.T) {
	p := NewProcess(Config{BinPath: fakeBinary(t, "exec sleep 30")}, hlsSource(), model.ProfileAuto)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })

	first := p.ReadChunks(context.Background())
	second := p.ReadChunks(context.Background())
	_, ok := <-second
	assert.False(t, ok)
	assert.NotNil(t, first)
}

func TestReadChunksBeforeStart(t *testing.T) {
	p := NewProcess(Config{}, hlsSource(), model.ProfileAuto)
	_, ok := <-p.ReadChunks(context.Background())
	assert.False(t, ok)
}

func TestFactoryAndVersion(t *testing.T) {
	bin := fakeBinary(t, `echo "ffmpeg version 6.1.1 Copyright"; echo "built with gcc"`)
	f := NewFactory(Config{BinPath: bin})
	tr := f.New(hlsSource(), model.Profile480p)
	assert.False(t, tr.IsRunning())

	v, err := Version(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1.1 Copyright", v)

	_, err = Version(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, lifecycle.ErrBinaryNotFound)
}
