// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager orchestrates stream sessions: admission, the media
// pipeline behind each session, reconnection and liveness monitoring.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/telemetry"
)

const (
	disconnectBuffer = 64
	leaveTimeout     = 5 * time.Second
	publishTimeout   = 250 * time.Millisecond
)

// ErrClosed is returned by Start once the registry has been closed.
var ErrClosed = errors.New("session registry closed")

// Deps are the collaborators a Registry composes. URLs and Bus are optional.
type Deps struct {
	Resolver    ports.ChatResolver
	Transport   ports.CallTransport
	URLs        ports.URLResolver
	Transcoders ports.TranscoderFactory
	Bus         ports.Bus
	Clock       func() time.Time
}

// Registry owns every session of the process and enforces one occupying
// session per target.
type Registry struct {
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer

	mu          sync.RWMutex
	sessions    map[string]*entry
	order       []string
	closed      bool
	reconnector *Reconnector
	monitor     *HealthMonitor

	disconnects chan DisconnectEvent
	workers     workers
	runCtx      context.Context
	runCancel   context.CancelFunc
}

type entry struct {
	sess *model.Session

	// opMu serializes connect, restart and teardown.
	opMu sync.Mutex

	mu            sync.Mutex
	pipe          *pipeline
	connectCancel context.CancelFunc
	stopping      bool
}

func (e *entry) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

// NewRegistry validates deps and starts the stream-end watcher when the
// transport pushes stream-end notifications.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Resolver == nil || deps.Transport == nil || deps.Transcoders == nil {
		return nil, errors.New("session registry: resolver, transport and transcoder factory are required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		deps:        deps,
		logger:      log.WithComponent("registry"),
		tracer:      telemetry.Tracer("tgstream/session"),
		sessions:    make(map[string]*entry),
		disconnects: make(chan DisconnectEvent, disconnectBuffer),
		runCtx:      ctx,
		runCancel:   cancel,
	}

	if n, ok := deps.Transport.(ports.StreamEndNotifier); ok {
		r.workers.Go(func() { r.watchStreamEnds(n.StreamEnded()) })
	}
	return r, nil
}

// Disconnects delivers disconnects detected by the registry's pipelines and
// the transport. The reconnector consumes it via Run.
func (r *Registry) Disconnects() <-chan DisconnectEvent {
	return r.disconnects
}

// AttachMonitor mirrors STREAMING and terminal transitions into m's membership.
func (r *Registry) AttachMonitor(m *HealthMonitor) {
	r.mu.Lock()
	r.monitor = m
	r.mu.Unlock()
}

func (r *Registry) attachReconnector(rc *Reconnector) {
	r.mu.Lock()
	r.reconnector = rc
	r.mu.Unlock()
}

func (r *Registry) monitorRef() *HealthMonitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitor
}

func (r *Registry) reconnectorRef() *Reconnector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reconnector
}

// Start resolves the target, admits a new session and connects it.
func (r *Registry) Start(ctx context.Context, identifier, sourceURL string, profile model.Profile) (_ model.Snapshot, err error) {
	ctx, span := r.tracer.Start(ctx, "session.start")
	defer func() { telemetry.EndSpan(span, err) }()

	profile, err = model.ParseProfile(string(profile))
	if err != nil {
		return model.Snapshot{}, err
	}

	targetID, err := r.deps.Resolver.ResolveTarget(ctx, identifier)
	if err != nil {
		if !errors.Is(err, lifecycle.ErrTargetNotFound) {
			err = fmt.Errorf("%w: %w", lifecycle.ErrTargetNotFound, err)
		}
		return model.Snapshot{}, err
	}

	src := model.Classify(sourceURL)
	e, err := r.admit(targetID, src, profile)
	if err != nil {
		return model.Snapshot{}, err
	}
	s := e.sess
	span.SetAttributes(telemetry.SessionAttributes(s.ID(), targetID, string(profile), string(src.Kind))...)

	r.publish(lifecycle.Event{Kind: lifecycle.EvCreated, SessionID: s.ID(), TargetID: targetID, At: r.deps.Clock().UTC()})
	r.onTransition(s, model.StatusPending, model.StatusConnecting, nil, "")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return model.Snapshot{}, fmt.Errorf("%w: %s", lifecycle.ErrSessionStopped, s.ID())
	}
	e.connectCancel = cancel
	e.mu.Unlock()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	cerr := r.connect(connCtx, e)

	e.mu.Lock()
	e.connectCancel = nil
	stopping := e.stopping
	e.mu.Unlock()

	if stopping {
		return model.Snapshot{}, fmt.Errorf("%w: %s", lifecycle.ErrSessionStopped, s.ID())
	}

	if cerr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.teardown(ctx, e)
			_ = r.markStopped(e, "cancelled")
			return model.Snapshot{}, fmt.Errorf("%w: %w", lifecycle.ErrSessionStopped, ctxErr)
		}
		if errors.Is(cerr, lifecycle.ErrPermissionDenied) {
			_ = r.markError(e, cerr, "")
			return model.Snapshot{}, cerr
		}
		werr := cerr
		if !errors.Is(cerr, lifecycle.ErrConnectionFailed) {
			werr = fmt.Errorf("%w: %w", lifecycle.ErrConnectionFailed, cerr)
		}
		_ = r.markError(e, werr, cerr.Error())
		return model.Snapshot{}, werr
	}

	if err := r.markStreaming(e); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s", lifecycle.ErrSessionStopped, s.ID())
	}
	snap := s.Snapshot()
	if r.pipelineEnded(e) {
		r.emitDisconnect(s, errTranscoderExited)
	}
	return snap, nil
}

// admit creates the session and moves it to CONNECTING in the same
// critical section as the occupancy check.
func (r *Registry) admit(targetID int64, src model.StreamSource, profile model.Profile) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	for _, id := range r.order {
		other := r.sessions[id].sess
		if other.TargetID() == targetID && other.Status().IsOccupying() {
			return nil, fmt.Errorf("%w: target %d has session %s", lifecycle.ErrAlreadyStreaming, targetID, id)
		}
	}

	id := model.NewSessionID()
	for r.sessions[id] != nil {
		id = model.NewSessionID()
	}
	s := model.NewSession(id, targetID, src, profile, r.deps.Clock)
	if err := s.MarkConnecting(); err != nil {
		return nil, err
	}
	e := &entry{sess: s}
	r.sessions[id] = e
	r.order = append(r.order, id)
	return e, nil
}

// Restart tears down the current pipeline of id and connects it again for
// the same target, source and profile. The session status is left alone.
func (r *Registry) Restart(ctx context.Context, id string) (err error) {
	e := r.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", lifecycle.ErrSessionNotFound, id)
	}

	ctx, span := r.tracer.Start(ctx, "session.restart")
	span.SetAttributes(telemetry.SessionAttributes(id, e.sess.TargetID(), string(e.sess.Profile()), string(e.sess.Source().Kind))...)
	defer func() { telemetry.EndSpan(span, err) }()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.isStopping() {
		return fmt.Errorf("%w: %s", lifecycle.ErrSessionStopped, id)
	}
	r.teardown(ctx, e)
	return r.connect(ctx, e)
}

// Stop cancels any in-flight connect or reconnection, releases the
// pipeline and marks the session STOPPED. It returns false for unknown ids.
func (r *Registry) Stop(ctx context.Context, id string) bool {
	return r.stop(ctx, id, "user")
}

func (r *Registry) stop(ctx context.Context, id, reason string) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	e.stopping = true
	cancel := e.connectCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if rc := r.reconnectorRef(); rc != nil {
		rc.CancelReconnection(id)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	r.teardown(ctx, e)
	if err := r.markStopped(e, reason); err != nil {
		r.logger.Debug().Err(err).Str(log.FieldSessionID, id).Msg("stop left terminal state unchanged")
	}
	return true
}

// Pause pauses media of a STREAMING session.
func (r *Registry) Pause(ctx context.Context, id string) bool {
	return r.toggle(ctx, id, model.StatusStreaming, r.deps.Transport.PauseMedia, r.markPaused)
}

// Resume resumes media of a PAUSED session.
func (r *Registry) Resume(ctx context.Context, id string) bool {
	return r.toggle(ctx, id, model.StatusPaused, r.deps.Transport.ResumeMedia, r.markResumed)
}

func (r *Registry) toggle(ctx context.Context, id string, want model.Status,
	call func(context.Context, int64) error, mark func(*entry) error) bool {
	e := r.lookup(id)
	if e == nil || e.sess.Status() != want {
		return false
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.sess.Status() != want || e.isStopping() {
		return false
	}
	if err := call(ctx, e.sess.TargetID()); err != nil {
		r.logger.Warn().Err(err).
			Str(log.FieldEvent, "session.media_control_failed").
			Str(log.FieldSessionID, id).
			Msg("media control rejected by transport")
		return false
	}
	return mark(e) == nil
}

// Get returns a snapshot of one session.
func (r *Registry) Get(id string) (model.Snapshot, bool) {
	e := r.lookup(id)
	if e == nil {
		return model.Snapshot{}, false
	}
	return e.sess.Snapshot(), true
}

// List returns snapshots of every session in creation order.
func (r *Registry) List() []model.Snapshot {
	entries := r.entries()
	out := make([]model.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.sess.Snapshot())
	}
	return out
}

// ListActive returns snapshots of STREAMING, PAUSED and RECONNECTING sessions.
func (r *Registry) ListActive() []model.Snapshot {
	var out []model.Snapshot
	for _, e := range r.entries() {
		if snap := e.sess.Snapshot(); snap.Status.IsActive() {
			out = append(out, snap)
		}
	}
	return out
}

// Close stops every non-terminal session and waits for registry goroutines.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	for _, e := range r.entries() {
		if !e.sess.Status().IsTerminal() {
			r.stop(ctx, e.sess.ID(), "shutdown")
		}
	}
	r.runCancel()
	return r.workers.CloseAndWait(ctx)
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// playingOn returns the STREAMING or PAUSED session of targetID.
func (r *Registry) playingOn(targetID int64) *entry {
	for _, e := range r.entries() {
		if e.sess.TargetID() != targetID {
			continue
		}
		if st := e.sess.Status(); st == model.StatusStreaming || st == model.StatusPaused {
			return e
		}
	}
	return nil
}

func (r *Registry) watchStreamEnds(ends <-chan ports.StreamEnd) {
	for {
		select {
		case <-r.runCtx.Done():
			return
		case end, ok := <-ends:
			if !ok {
				return
			}
			e := r.playingOn(end.TargetID)
			if e == nil {
				continue
			}
			cause := end.Err
			if cause == nil {
				cause = errStreamEnded
			}
			r.emitDisconnect(e.sess, cause)
		}
	}
}

func (r *Registry) emitDisconnect(s *model.Session, cause error) {
	ev := DisconnectEvent{SessionID: s.ID(), Cause: cause, At: r.deps.Clock().UTC()}
	select {
	case r.disconnects <- ev:
	default:
		r.logger.Warn().
			Str(log.FieldEvent, "session.disconnect_dropped").
			Str(log.FieldSessionID, s.ID()).
			Msg("disconnect queue full")
	}

	r.logger.Info().Err(cause).
		Str(log.FieldEvent, "session.disconnected").
		Str(log.FieldSessionID, s.ID()).
		Int64(log.FieldTargetID, s.TargetID()).
		Msg("session disconnected")
	r.publish(lifecycle.Event{
		Kind:      lifecycle.EvDisconnected,
		SessionID: s.ID(),
		TargetID:  s.TargetID(),
		Error:     cause.Error(),
		At:        ev.At,
	})
}

func (r *Registry) publish(ev lifecycle.Event) {
	if r.deps.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.deps.Bus.Publish(ctx, lifecycle.TopicSessions, ev); err != nil {
		r.logger.Debug().Err(err).Str(log.FieldSessionID, ev.SessionID).Msg("event publish failed")
	}
}
