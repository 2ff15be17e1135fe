// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/tgstream/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace for exited to
// close, then SIGKILL and wait for exited again. exited must be closed by
// whoever reaps the process (the goroutine calling cmd.Wait).
// It is safe to call on nil commands and on processes that already exited.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) Outcome {
	if cmd == nil || cmd.Process == nil {
		return OutcomeExited
	}

	select {
	case <-exited:
		metrics.IncProcStop(string(OutcomeExited))
		return OutcomeExited
	default:
	}

	signal(cmd, syscall.SIGTERM, "SIGTERM")

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
		metrics.IncProcStop(string(OutcomeTerminated))
		return OutcomeTerminated
	case <-timer.C:
	}

	signal(cmd, syscall.SIGKILL, "SIGKILL")
	<-exited
	metrics.IncProcStop(string(OutcomeKilled))
	return OutcomeKilled
}

func signal(cmd *exec.Cmd, sig syscall.Signal, name string) {
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}
