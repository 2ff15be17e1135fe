// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// URLResolver turns a video-platform page URL into a direct media URL.
// Failures wrap lifecycle.ErrSourceUnavailable.
type URLResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// Transcoder is one supervised transcoding process.
type Transcoder interface {
	// Start launches the process. It fails with lifecycle.ErrBinaryNotFound
	// or lifecycle.ErrProcessStartFailed.
	Start(ctx context.Context) error
	// ReadChunks streams process output until it ends or ctx is done.
	// It may be called once per process.
	ReadChunks(ctx context.Context) <-chan []byte
	// Stop terminates the process. It is idempotent.
	Stop() error
	IsRunning() bool
}

// TranscoderFactory builds a transcoder for a source and profile.
type TranscoderFactory interface {
	New(src model.StreamSource, profile model.Profile) Transcoder
}
