// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports defines the capabilities the session orchestrator consumes.
package ports

import (
	"context"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// ChatResolver maps a user-supplied chat identifier (username, invite link
// or numeric id) to the numeric target id of the call.
// Failures wrap lifecycle.ErrTargetNotFound.
type ChatResolver interface {
	ResolveTarget(ctx context.Context, identifier string) (int64, error)
}

// Media is what a transport plays into a call. Exactly one of URL or
// Chunks is set: URL for passthrough sources the transport can open itself,
// Chunks for MPEG-TS produced by a local transcoder. Chunks is closed when
// the transcoder output ends.
type Media struct {
	Kind   model.SourceKind
	URL    string
	Chunks <-chan []byte
}

// IsStream reports whether the media is fed as a byte stream.
func (m Media) IsStream() bool { return m.Chunks != nil }

// CallTransport joins and controls group calls. Failures wrap
// lifecycle.ErrPermissionDenied or lifecycle.ErrConnectionFailed.
type CallTransport interface {
	Join(ctx context.Context, targetID int64, media Media) error
	Leave(ctx context.Context, targetID int64) error
	PauseMedia(ctx context.Context, targetID int64) error
	ResumeMedia(ctx context.Context, targetID int64) error
}

// CallStatusProber is implemented by transports that can report whether
// they are still attached to a call.
type CallStatusProber interface {
	CallActive(ctx context.Context, targetID int64) (bool, error)
}

// StreamEnd reports that a transport lost its call or finished playback.
type StreamEnd struct {
	TargetID int64
	Err      error
}

// StreamEndNotifier is implemented by transports that push stream-end
// notifications.
type StreamEndNotifier interface {
	StreamEnded() <-chan StreamEnd
}
