// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"errors"
	"time"
)

var (
	errStreamEnded       = errors.New("stream ended")
	errTranscoderExited  = errors.New("transcoder output ended")
	errTranscoderStopped = errors.New("transcoder not running")
	errStalled           = errors.New("no media progress since last probe")
	errCallInactive      = errors.New("call no longer active")
)

// DisconnectEvent reports that a session lost its source, transcoder or call.
type DisconnectEvent struct {
	SessionID string
	Cause     error
	At        time.Time
}
