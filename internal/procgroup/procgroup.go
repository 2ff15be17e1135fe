// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns and reaps subprocesses as whole process groups,
// so that helpers forked by a transcoder die with it.
package procgroup

// Outcome describes how a process ended after Terminate.
type Outcome string

const (
	// OutcomeExited means the process was already gone before any signal mattered.
	OutcomeExited Outcome = "exited"
	// OutcomeTerminated means the process exited within the grace period after SIGTERM.
	OutcomeTerminated Outcome = "terminated"
	// OutcomeKilled means SIGKILL was required.
	OutcomeKilled Outcome = "killed"
)
