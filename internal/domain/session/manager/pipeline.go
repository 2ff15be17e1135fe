// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
)

const chunkBuffer = 16

// pipeline is the media path of one connected session. A transcoder
// handle belongs to exactly one pipeline.
type pipeline struct {
	transcoder ports.Transcoder
	cancel     context.CancelFunc
	done       chan struct{}

	// guarded by entry.mu
	joined    bool
	ended     bool
	lastBytes int64
	probed    bool
}

// connect resolves the source, starts the transcoder when the profile or
// source kind needs one and joins the call. On failure nothing is left
// running.
func (r *Registry) connect(ctx context.Context, e *entry) error {
	s := e.sess
	src := s.Source()

	if src.Kind == model.SourceVideoPlatform {
		direct, err := r.resolveURL(ctx, src.URL)
		if err != nil {
			return err
		}
		src = model.StreamSource{URL: direct, Kind: src.Kind}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pctx, cancel := context.WithCancel(r.runCtx)
	p := &pipeline{cancel: cancel}
	media := ports.Media{Kind: src.Kind, URL: src.URL}

	if model.NeedsTranscoder(src, s.Profile()) {
		tc := r.deps.Transcoders.New(src, s.Profile())
		if err := tc.Start(pctx); err != nil {
			cancel()
			return err
		}
		chunks := make(chan []byte, chunkBuffer)
		p.transcoder = tc
		p.done = make(chan struct{})
		media = ports.Media{Kind: src.Kind, Chunks: chunks}
		go r.pump(pctx, e, p, tc.ReadChunks(pctx), chunks)
	}

	e.mu.Lock()
	e.pipe = p
	e.mu.Unlock()

	if err := r.deps.Transport.Join(ctx, s.TargetID(), media); err != nil {
		r.teardown(ctx, e)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, lifecycle.ErrPermissionDenied) && !errors.Is(err, lifecycle.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", lifecycle.ErrConnectionFailed, err)
		}
		return err
	}

	e.mu.Lock()
	p.joined = true
	e.mu.Unlock()

	r.logger.Info().
		Str(log.FieldEvent, "session.connected").
		Str(log.FieldSessionID, s.ID()).
		Int64(log.FieldTargetID, s.TargetID()).
		Str(log.FieldSourceKind, string(src.Kind)).
		Str(log.FieldProfile, string(s.Profile())).
		Bool("transcoded", p.transcoder != nil).
		Msg("media pipeline connected")
	return nil
}

func (r *Registry) resolveURL(ctx context.Context, url string) (string, error) {
	if r.deps.URLs == nil {
		return "", fmt.Errorf("%w: no video platform resolver configured", lifecycle.ErrSourceUnavailable)
	}
	direct, err := r.deps.URLs.Resolve(ctx, url)
	if err != nil {
		if !errors.Is(err, lifecycle.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", lifecycle.ErrSourceUnavailable, err)
		}
		return "", err
	}
	return direct, nil
}

// pump forwards transcoder output to the transport and counts it. When the
// output ends on its own, the session is reported disconnected.
func (r *Registry) pump(ctx context.Context, e *entry, p *pipeline, in <-chan []byte, out chan<- []byte) {
	defer close(p.done)
	defer close(out)

	for chunk := range in {
		e.sess.RecordChunk(len(chunk))
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	current := e.pipe == p
	p.ended = true
	e.mu.Unlock()
	if current {
		r.emitDisconnect(e.sess, errTranscoderExited)
	}
}

// pipelineEnded reports whether the transcoder output of the current
// pipeline already ended. A disconnect emitted while the session was still
// connecting is dropped, so callers check this after marking STREAMING.
func (r *Registry) pipelineEnded(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipe != nil && e.pipe.ended
}

// teardown releases the current pipeline of e. Leave is best effort and
// survives cancellation of ctx.
func (r *Registry) teardown(ctx context.Context, e *entry) {
	e.mu.Lock()
	p := e.pipe
	e.pipe = nil
	joined := p != nil && p.joined
	e.mu.Unlock()
	if p == nil {
		return
	}

	if p.transcoder != nil {
		if err := p.transcoder.Stop(); err != nil {
			r.logger.Debug().Err(err).Str(log.FieldSessionID, e.sess.ID()).Msg("transcoder stop")
		}
	}
	p.cancel()
	if p.done != nil {
		<-p.done
	}

	if !joined {
		return
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancel()
	if err := r.deps.Transport.Leave(lctx, e.sess.TargetID()); err != nil {
		r.logger.Warn().Err(err).
			Str(log.FieldEvent, "session.leave_failed").
			Str(log.FieldSessionID, e.sess.ID()).
			Int64(log.FieldTargetID, e.sess.TargetID()).
			Msg("leave call failed")
	}
}
