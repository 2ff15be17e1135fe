// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/telemetry"
)

// Policy bounds reconnection of a single session.
type Policy struct {
	Enabled     bool
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Timeout caps the wall time of one reconnection loop. Zero disables it.
	Timeout time.Duration
}

// DefaultPolicy returns the stock reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:     true,
		MinDelay:    5 * time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
		Timeout:     90 * time.Second,
	}
}

// newBackOff yields min(max, min*2^(n-1)) without jitter.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

type reconnectTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	// lost is set when a disconnect arrives for a session the loop has
	// already marked STREAMING but not yet released. Guarded by rc.mu.
	lost bool
}

// Reconnector drives bounded reconnection, one loop per session.
type Reconnector struct {
	reg    *Registry
	policy atomic.Pointer[Policy]
	logger zerolog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	tasks   map[string]*reconnectTask
	stopped bool
	wg      sync.WaitGroup
}

// NewReconnector attaches a reconnector to reg. Stop on reg cancels the
// session's reconnection loop.
func NewReconnector(reg *Registry, p Policy) *Reconnector {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &Reconnector{
		reg:        reg,
		logger:     log.WithComponent("reconnector"),
		rootCtx:    ctx,
		rootCancel: cancel,
		tasks:      make(map[string]*reconnectTask),
	}
	rc.policy.Store(&p)
	reg.attachReconnector(rc)
	return rc
}

// UpdatePolicy replaces the policy for loops started from now on.
func (rc *Reconnector) UpdatePolicy(p Policy) {
	rc.policy.Store(&p)
	rc.logger.Info().
		Str(log.FieldEvent, "reconnect.policy_updated").
		Bool("enabled", p.Enabled).
		Int("max_attempts", p.MaxAttempts).
		Dur("min_delay", p.MinDelay).
		Dur("max_delay", p.MaxDelay).
		Msg("reconnect policy updated")
}

// Policy returns the current policy.
func (rc *Reconnector) Policy() Policy {
	return *rc.policy.Load()
}

// Run feeds disconnect events into HandleDisconnect until ctx is done or
// events is closed.
func (rc *Reconnector) Run(ctx context.Context, events <-chan DisconnectEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			rc.HandleDisconnect(ev.SessionID, ev.Cause)
		}
	}
}

// HandleDisconnect starts a reconnection loop for a STREAMING or PAUSED
// session. It reports whether a loop is running for id afterwards.
func (rc *Reconnector) HandleDisconnect(id string, cause error) bool {
	e := rc.reg.lookup(id)
	if e == nil {
		return false
	}
	if st := e.sess.Status(); st != model.StatusStreaming && st != model.StatusPaused {
		return false
	}
	if e.isStopping() {
		return false
	}
	p := rc.Policy()

	rc.mu.Lock()
	if rc.stopped {
		rc.mu.Unlock()
		return false
	}
	if t, running := rc.tasks[id]; running {
		t.lost = true
		rc.mu.Unlock()
		return true
	}

	if !p.Enabled {
		rc.mu.Unlock()
		msg := "disconnected"
		if cause != nil {
			msg = cause.Error()
		}
		rc.reg.fail(e, fmt.Errorf("%w: %s", lifecycle.ErrConnectionFailed, msg), msg)
		return false
	}
	if e.sess.ReconnectAttempts() >= p.MaxAttempts {
		rc.mu.Unlock()
		rc.reg.fail(e, lifecycle.ErrReconnectionExhausted, "max reconnection attempts reached")
		return false
	}

	ctx, cancel := context.WithCancel(rc.rootCtx)
	t := &reconnectTask{cancel: cancel, done: make(chan struct{})}
	rc.tasks[id] = t
	rc.wg.Add(1)
	rc.mu.Unlock()

	rc.logger.Info().Err(cause).
		Str(log.FieldEvent, "reconnect.scheduled").
		Str(log.FieldSessionID, id).
		Msg("reconnection scheduled")

	go rc.loop(ctx, e, t, p)
	return true
}

func (rc *Reconnector) loop(ctx context.Context, e *entry, t *reconnectTask, p Policy) {
	id := e.sess.ID()
	defer rc.wg.Done()
	defer close(t.done)
	defer t.cancel()
	defer rc.forget(id, t)

	b := p.newBackOff()
	var deadline time.Time
	if p.Timeout > 0 {
		deadline = time.Now().Add(p.Timeout)
	}

	for {
		if err := rc.reg.markReconnecting(e); err != nil {
			return
		}
		rc.mu.Lock()
		t.lost = false
		rc.mu.Unlock()
		attempt := e.sess.ReconnectAttempts()

		err := rc.attempt(ctx, e, attempt, deadline)
		if err == nil {
			if rc.reg.markStreaming(e) != nil {
				return
			}
			if rc.settle(id, t, e) {
				rc.logger.Info().
					Str(log.FieldEvent, "reconnect.succeeded").
					Str(log.FieldSessionID, id).
					Int(log.FieldAttempt, attempt).
					Msg("session reconnected")
				return
			}
			err = fmt.Errorf("%w: %w", lifecycle.ErrConnectionFailed, errTranscoderExited)
		}
		if ctx.Err() != nil || errors.Is(err, lifecycle.ErrSessionStopped) {
			return
		}

		rc.logger.Warn().Err(err).
			Str(log.FieldEvent, "reconnect.attempt_failed").
			Str(log.FieldSessionID, id).
			Int(log.FieldAttempt, attempt).
			Msg("reconnect attempt failed")

		if !lifecycle.Retryable(err) {
			_ = rc.reg.markError(e, err, "")
			return
		}
		expired := !deadline.IsZero() && !time.Now().Before(deadline)
		if attempt >= p.MaxAttempts || expired {
			_ = rc.reg.markError(e, fmt.Errorf("%w: %w", lifecycle.ErrReconnectionExhausted, err),
				"reconnection failed after all attempts")
			return
		}

		wait := b.NextBackOff()
		overrun := !deadline.IsZero() && time.Until(deadline) <= wait
		if overrun {
			wait = time.Until(deadline)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if overrun {
			_ = rc.reg.markError(e, fmt.Errorf("%w: %w", lifecycle.ErrReconnectionExhausted, err),
				"reconnection failed after all attempts")
			return
		}
	}
}

// settle releases t once the session is back to STREAMING on a pipeline
// that is still alive. It returns false when the new pipeline already lost
// its output or another disconnect arrived meanwhile; the loop then keeps
// going.
func (rc *Reconnector) settle(id string, t *reconnectTask, e *entry) bool {
	ended := rc.reg.pipelineEnded(e)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if ended || t.lost {
		t.lost = false
		return false
	}
	if rc.tasks[id] == t {
		delete(rc.tasks, id)
	}
	return true
}

// attempt runs one Restart bounded by the loop deadline.
func (rc *Reconnector) attempt(ctx context.Context, e *entry, attempt int, deadline time.Time) (err error) {
	actx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		actx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	actx, span := rc.reg.tracer.Start(actx, "session.reconnect_attempt")
	span.SetAttributes(telemetry.ReconnectAttributes(attempt, model.NeedsTranscoder(e.sess.Source(), e.sess.Profile()))...)
	defer func() { telemetry.EndSpan(span, err) }()

	err = rc.reg.Restart(actx, e.sess.ID())
	if err != nil && ctx.Err() == nil && actx.Err() != nil {
		err = fmt.Errorf("%w: reconnect timeout: %w", lifecycle.ErrConnectionFailed, actx.Err())
	}
	return err
}

func (rc *Reconnector) forget(id string, t *reconnectTask) {
	rc.mu.Lock()
	if rc.tasks[id] == t {
		delete(rc.tasks, id)
	}
	rc.mu.Unlock()
}

// CancelReconnection cancels the loop of id and waits for it to exit.
func (rc *Reconnector) CancelReconnection(id string) bool {
	rc.mu.Lock()
	t, ok := rc.tasks[id]
	rc.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// IsReconnecting reports whether a loop is running for id.
func (rc *Reconnector) IsReconnecting(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.tasks[id]
	return ok
}

// Stop cancels every loop and waits for them. Sessions left RECONNECTING
// end in ERROR. Later disconnects are refused.
func (rc *Reconnector) Stop() {
	rc.mu.Lock()
	if rc.stopped {
		rc.mu.Unlock()
		return
	}
	rc.stopped = true
	rc.mu.Unlock()

	rc.rootCancel()
	rc.wg.Wait()

	for _, e := range rc.reg.entries() {
		if e.sess.Status() != model.StatusReconnecting {
			continue
		}
		rc.reg.fail(e, context.Canceled, "reconnection cancelled: manager stopped")
	}
}
