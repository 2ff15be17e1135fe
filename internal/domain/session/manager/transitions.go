// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
)

// transition applies mark to the session and fans the change out to logs,
// metrics, the bus and the health monitor. A session being stopped only
// accepts STOPPED.
func (r *Registry) transition(e *entry, to model.Status, cause error, reason string, mark func(*model.Session) error) error {
	e.mu.Lock()
	if e.stopping && to != model.StatusStopped {
		e.mu.Unlock()
		return lifecycle.ErrSessionStopped
	}
	from := e.sess.Status()
	if from == model.StatusStopped && to == model.StatusStopped {
		e.mu.Unlock()
		return nil
	}
	err := mark(e.sess)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	r.onTransition(e.sess, from, to, cause, reason)
	return nil
}

func (r *Registry) markStreaming(e *entry) error {
	return r.transition(e, model.StatusStreaming, nil, "", (*model.Session).MarkStreaming)
}

func (r *Registry) markPaused(e *entry) error {
	return r.transition(e, model.StatusPaused, nil, "", (*model.Session).MarkPaused)
}

func (r *Registry) markResumed(e *entry) error {
	return r.transition(e, model.StatusStreaming, nil, "", (*model.Session).MarkResumed)
}

func (r *Registry) markReconnecting(e *entry) error {
	return r.transition(e, model.StatusReconnecting, nil, "", (*model.Session).MarkReconnecting)
}

func (r *Registry) markStopped(e *entry, reason string) error {
	return r.transition(e, model.StatusStopped, nil, reason, (*model.Session).MarkStopped)
}

// markError records cause on the session. An empty msg records cause's text.
func (r *Registry) markError(e *entry, cause error, msg string) error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return r.transition(e, model.StatusError, cause, "", func(s *model.Session) error {
		return s.MarkError(msg)
	})
}

// fail releases the pipeline of e and marks it ERROR.
func (r *Registry) fail(e *entry, cause error, msg string) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	r.teardown(context.Background(), e)
	_ = r.markError(e, cause, msg)
}

func (r *Registry) onTransition(s *model.Session, from, to model.Status, cause error, reason string) {
	errType := ""
	if to == model.StatusError {
		if errType = lifecycle.Code(cause); errType == "" {
			errType = "internal"
		}
	}
	observeTransition(s, from, to, reason, errType)

	ev := r.logger.Info()
	if to == model.StatusError {
		ev = r.logger.Warn().Err(cause)
	}
	ev.Str(log.FieldEvent, "session.transition").
		Str(log.FieldSessionID, s.ID()).
		Int64(log.FieldTargetID, s.TargetID()).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Int(log.FieldAttempt, s.ReconnectAttempts()).
		Msg("session state changed")

	snap := s.Snapshot()
	event := lifecycle.Event{
		Kind:      lifecycle.EvTransition,
		SessionID: snap.ID,
		TargetID:  snap.TargetID,
		From:      from,
		To:        to,
		Attempt:   snap.ReconnectAttempts,
		At:        r.deps.Clock().UTC(),
	}
	if to == model.StatusError {
		event.Error = snap.LastError
	}
	r.publish(event)

	if m := r.monitorRef(); m != nil {
		switch {
		case to == model.StatusStreaming:
			m.Register(s)
		case to.IsTerminal():
			m.Unregister(s.ID())
		}
	}
}
