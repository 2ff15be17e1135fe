// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os/exec"

	"github.com/ManuGH/tgstream/internal/resilience"
)

// BinaryChecker checks that an external tool is on PATH. A missing
// required binary is unhealthy; a missing optional one only degrades.
type BinaryChecker struct {
	name     string
	bin      string
	required bool
	lookPath func(string) (string, error)
}

// NewBinaryChecker creates a checker for bin.
func NewBinaryChecker(name, bin string, required bool) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin, required: required, lookPath: exec.LookPath}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(context.Context) CheckResult {
	path, err := c.lookPath(c.bin)
	if err != nil {
		status := StatusDegraded
		if c.required {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Message: c.bin, Error: "binary not found"}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// PingChecker reports a remote dependency through its ping function,
// e.g. the call bridge health endpoint or a Redis PING.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	required bool
}

// NewPingChecker creates a checker around ping. A nil ping reports the
// dependency as not configured.
func NewPingChecker(name string, ping func(ctx context.Context) error, required bool) *PingChecker {
	return &PingChecker{name: name, ping: ping, required: required}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.ping(ctx); err != nil {
		status := StatusDegraded
		if c.required {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// BreakerChecker degrades while a circuit breaker is not closed.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a checker for a breaker's state.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch st := c.state(); st {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(st)}
	default:
		return CheckResult{Status: StatusDegraded, Message: string(st)}
	}
}
