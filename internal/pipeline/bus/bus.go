// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries session lifecycle events between components.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/metrics"
)

const (
	subscriberBuffer = 64
	dropLogEvery     = 100
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

var (
	_ ports.Bus = (*MemoryBus)(nil)
	_ ports.Bus = (*RedisBus)(nil)
)

var dropCount atomic.Uint64

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "context_done"
	}
}

func recordDrop(topic string, err error) {
	reason := dropReason(err)
	metrics.IncBusDropReason(topic, reason)
	if n := dropCount.Add(1); n%dropLogEvery == 0 {
		log.L().Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("dropped", n).
			Msg("session bus dropped events")
	}
}
