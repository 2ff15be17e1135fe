// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
)

// Probe checks that the pipeline behind snap is alive. It fails when the
// transcoder stopped, when a STREAMING session made no progress since the
// previous probe, or when the transport reports the call inactive.
func (r *Registry) Probe(ctx context.Context, snap model.Snapshot) error {
	e := r.lookup(snap.ID)
	if e == nil {
		return fmt.Errorf("%w: %s", lifecycle.ErrSessionNotFound, snap.ID)
	}

	e.mu.Lock()
	p := e.pipe
	if p == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: no media pipeline", lifecycle.ErrConnectionFailed)
	}
	if p.transcoder != nil {
		if !p.transcoder.IsRunning() {
			e.mu.Unlock()
			return errTranscoderStopped
		}
		bytes := e.sess.BytesStreamed()
		stalled := snap.Status == model.StatusStreaming && p.probed && bytes == p.lastBytes
		p.lastBytes = bytes
		p.probed = snap.Status == model.StatusStreaming
		if stalled {
			e.mu.Unlock()
			return errStalled
		}
	}
	e.mu.Unlock()

	prober, ok := r.deps.Transport.(ports.CallStatusProber)
	if !ok {
		return nil
	}
	active, err := prober.CallActive(ctx, snap.TargetID)
	if err != nil {
		return fmt.Errorf("call status: %w", err)
	}
	if !active {
		return errCallInactive
	}
	return nil
}
