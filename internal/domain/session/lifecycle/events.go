// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// TopicSessions is the bus topic carrying session lifecycle events.
const TopicSessions = "tgstream.sessions"

// EventKind names what happened to a session.
type EventKind string

const (
	EvCreated      EventKind = "created"
	EvTransition   EventKind = "transition"
	EvDisconnected EventKind = "disconnected"
)

// Event is published on every observable session change.
type Event struct {
	Kind      EventKind    `json:"kind"`
	SessionID string       `json:"session_id"`
	TargetID  int64        `json:"target_id"`
	From      model.Status `json:"from,omitempty"`
	To        model.Status `json:"to,omitempty"`
	Attempt   int          `json:"attempt,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}
