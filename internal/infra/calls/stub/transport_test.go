// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stub

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestResolveTarget(t *testing.T) {
	tr := New(Options{Names: map[string]int64{"@News": -1001}})
	ctx := context.Background()

	id, err := tr.ResolveTarget(ctx, "-1001234567890")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234567890), id)

	id, err = tr.ResolveTarget(ctx, "@news")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001), id)

	_, err = tr.ResolveTarget(ctx, "@nobody")
	assert.ErrorIs(t, err, lifecycle.ErrTargetNotFound)
}

func TestJoinStreamWritesOutput(t *testing.T) {
	out := &syncBuffer{}
	tr := New(Options{Output: out})
	defer tr.Close()

	chunks := make(chan []byte)
	require.NoError(t, tr.Join(context.Background(), 7, ports.Media{Kind: model.SourceRTMP, Chunks: chunks}))

	send := func(s string, total int) {
		chunks <- []byte(s)
		require.Eventually(t, func() bool {
			c, _ := tr.Call(7)
			return c.Bytes == int64(total)
		}, time.Second, 5*time.Millisecond)
	}

	send("abc", 3)
	require.NoError(t, tr.PauseMedia(context.Background(), 7))
	send("paused", 9)
	require.NoError(t, tr.ResumeMedia(context.Background(), 7))
	send("def", 12)
	close(chunks)

	assert.Equal(t, "abcdef", out.String())
}

func TestFailJoinsIsOneShotInOrder(t *testing.T) {
	tr := New(Options{})
	defer tr.Close()
	ctx := context.Background()
	media := ports.Media{Kind: model.SourceHLS, URL: "https://x/a.m3u8"}

	errDenied := errors.New("denied")
	tr.FailJoins(5, lifecycle.ErrConnectionFailed, errDenied)

	assert.ErrorIs(t, tr.Join(ctx, 5, media), lifecycle.ErrConnectionFailed)
	assert.ErrorIs(t, tr.Join(ctx, 5, media), errDenied)
	require.NoError(t, tr.Join(ctx, 5, media))
	assert.Equal(t, 3, tr.Joins(5))

	c, ok := tr.Call(5)
	require.True(t, ok)
	assert.Equal(t, media, c.Media)
}

func TestLeaveAndCallActive(t *testing.T) {
	tr := New(Options{})
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, 9, ports.Media{Chunks: make(chan []byte)}))
	active, err := tr.CallActive(ctx, 9)
	require.NoError(t, err)
	assert.True(t, active)

	tr.MarkInactive(9)
	active, _ = tr.CallActive(ctx, 9)
	assert.False(t, active)

	require.NoError(t, tr.Leave(ctx, 9))
	require.NoError(t, tr.Leave(ctx, 9))
	_, ok := tr.Call(9)
	assert.False(t, ok)

	assert.ErrorIs(t, tr.PauseMedia(ctx, 9), lifecycle.ErrConnectionFailed)
}

func TestEndStream(t *testing.T) {
	tr := New(Options{})
	defer tr.Close()
	require.NoError(t, tr.Join(context.Background(), 3, ports.Media{URL: "u"}))

	tr.EndStream(3, lifecycle.ErrConnectionFailed)
	ev := <-tr.StreamEnded()
	assert.Equal(t, int64(3), ev.TargetID)
	active, _ := tr.CallActive(context.Background(), 3)
	assert.False(t, active)
}
