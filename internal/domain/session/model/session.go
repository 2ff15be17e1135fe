// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"sync"
	"time"
)

// Session is the unit of orchestration. All methods are safe for
// concurrent use; readers should prefer Snapshot.
type Session struct {
	id        string
	targetID  int64
	source    StreamSource
	profile   Profile
	createdAt time.Time
	now       func() time.Time

	mu                sync.RWMutex
	status            Status
	startedAt         time.Time
	stoppedAt         time.Time
	reconnectAttempts int
	lastReconnectAt   time.Time
	lastError         string
	errorCount        int
	bytesStreamed     int64
	framesSent        int64
}

// NewSession creates a PENDING session. now may be nil.
func NewSession(id string, targetID int64, src StreamSource, profile Profile, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:        id,
		targetID:  targetID,
		source:    src,
		profile:   profile,
		createdAt: now().UTC(),
		now:       func() time.Time { return now().UTC() },
		status:    StatusPending,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) TargetID() int64      { return s.targetID }
func (s *Session) Source() StreamSource { return s.source }
func (s *Session) Profile() Profile     { return s.profile }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ReconnectAttempts returns the attempt counter of the current reconnect cycle.
func (s *Session) ReconnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectAttempts
}

// BytesStreamed returns the number of media bytes handed to the transport.
func (s *Session) BytesStreamed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytesStreamed
}

// transitionLocked moves to next if the edge exists. Caller holds s.mu.
func (s *Session) transitionLocked(next Status) error {
	if !CanTransition(s.status, next) {
		return &TransitionError{From: s.status, To: next}
	}
	s.status = next
	return nil
}

// MarkConnecting moves PENDING to CONNECTING.
func (s *Session) MarkConnecting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(StatusConnecting)
}

// MarkStreaming enters STREAMING and resets the reconnect counter.
// startedAt is recorded on the first entry only.
func (s *Session) MarkStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusStreaming); err != nil {
		return err
	}
	if s.startedAt.IsZero() {
		s.startedAt = s.now()
	}
	s.reconnectAttempts = 0
	return nil
}

// MarkPaused moves STREAMING to PAUSED.
func (s *Session) MarkPaused() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return &TransitionError{From: s.status, To: StatusPaused}
	}
	return s.transitionLocked(StatusPaused)
}

// MarkResumed moves PAUSED back to STREAMING.
func (s *Session) MarkResumed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return &TransitionError{From: s.status, To: StatusStreaming}
	}
	return s.transitionLocked(StatusStreaming)
}

// MarkReconnecting records one reconnect attempt. Every call increments the
// attempt counter by exactly one.
func (s *Session) MarkReconnecting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusReconnecting); err != nil {
		return err
	}
	s.reconnectAttempts++
	s.lastReconnectAt = s.now()
	return nil
}

// MarkError records msg as the latest error and enters ERROR.
func (s *Session) MarkError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusError); err != nil {
		return err
	}
	s.lastError = msg
	s.errorCount++
	if s.stoppedAt.IsZero() {
		s.stoppedAt = s.now()
	}
	return nil
}

// MarkStopped enters STOPPED and freezes the duration. Stopping a stopped
// session is a no-op.
func (s *Session) MarkStopped() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusStopped {
		return nil
	}
	if err := s.transitionLocked(StatusStopped); err != nil {
		return err
	}
	if s.stoppedAt.IsZero() {
		s.stoppedAt = s.now()
	}
	return nil
}

// RecordChunk accounts one chunk of n bytes delivered to the transport.
func (s *Session) RecordChunk(n int) {
	s.mu.Lock()
	s.bytesStreamed += int64(n)
	s.framesSent++
	s.mu.Unlock()
}

// Duration is (stoppedAt or now) - startedAt, or zero before the first
// successful connect.
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durationLocked()
}

func (s *Session) durationLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.stoppedAt
	if end.IsZero() {
		end = s.now()
	}
	if end.Before(s.startedAt) {
		return 0
	}
	return end.Sub(s.startedAt)
}

// Snapshot returns a consistent read-only copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:                s.id,
		TargetID:          s.targetID,
		SourceURL:         s.source.URL,
		SourceType:        s.source.Kind,
		Status:            s.status,
		Profile:           s.profile,
		CreatedAt:         s.createdAt,
		DurationSeconds:   s.durationLocked().Seconds(),
		ReconnectAttempts: s.reconnectAttempts,
		LastError:         s.lastError,
		ErrorCount:        s.errorCount,
		BytesStreamed:     s.bytesStreamed,
		FramesSent:        s.framesSent,
	}
	snap.StartedAt = timePtr(s.startedAt)
	snap.StoppedAt = timePtr(s.stoppedAt)
	snap.LastReconnectAt = timePtr(s.lastReconnectAt)
	return snap
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Snapshot is the serializable view of a session.
type Snapshot struct {
	ID                string     `json:"id"`
	TargetID          int64      `json:"target_id"`
	SourceURL         string     `json:"source_url"`
	SourceType        SourceKind `json:"source_type"`
	Status            Status     `json:"status"`
	Profile           Profile    `json:"profile"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at"`
	StoppedAt         *time.Time `json:"stopped_at"`
	DurationSeconds   float64    `json:"duration_seconds"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	LastReconnectAt   *time.Time `json:"last_reconnect_at"`
	LastError         string     `json:"last_error,omitempty"`
	ErrorCount        int        `json:"error_count"`
	BytesStreamed     int64      `json:"bytes_streamed"`
	FramesSent        int64      `json:"frames_sent"`
}
