// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers_CloseAndWait(t *testing.T) {
	var w workers
	release := make(chan struct{})
	require.True(t, w.Go(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.CloseAndWait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.False(t, w.Go(func() {}), "no new work after close")

	close(release)
	require.NoError(t, w.CloseAndWait(context.Background()))
}
