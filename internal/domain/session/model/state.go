// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// Status is the lifecycle state of a stream session.
type Status string

const (
	StatusPending      Status = "pending"
	StatusConnecting   Status = "connecting"
	StatusStreaming    Status = "streaming"
	StatusReconnecting Status = "reconnecting"
	StatusPaused       Status = "paused"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// IsTerminal returns true for states a session instance never leaves.
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusError
}

// IsOccupying reports whether the state reserves the session's target.
func (s Status) IsOccupying() bool {
	switch s {
	case StatusConnecting, StatusStreaming, StatusReconnecting:
		return true
	}
	return false
}

// IsActive reports whether the session counts as an active stream.
func (s Status) IsActive() bool {
	switch s {
	case StatusStreaming, StatusPaused, StatusReconnecting:
		return true
	}
	return false
}

// transitions is the complete edge set of the session state machine.
// Self-edges on reconnecting and error carry bookkeeping only.
var transitions = map[Status][]Status{
	StatusPending:      {StatusConnecting, StatusStopped},
	StatusConnecting:   {StatusStreaming, StatusError, StatusStopped},
	StatusStreaming:    {StatusPaused, StatusReconnecting, StatusStopped, StatusError},
	StatusPaused:       {StatusStreaming, StatusReconnecting, StatusStopped, StatusError},
	StatusReconnecting: {StatusReconnecting, StatusStreaming, StatusError, StatusStopped},
	StatusError:        {StatusError},
	StatusStopped:      nil,
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a mark operation is not allowed from the
// session's current state.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}
