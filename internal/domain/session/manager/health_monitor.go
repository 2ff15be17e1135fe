// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
)

const (
	DefaultMonitorInterval = 30 * time.Second
	defaultProbeTimeout    = 5 * time.Second
)

// LivenessProbe reports whether the pipeline behind a session is alive.
type LivenessProbe interface {
	Probe(ctx context.Context, snap model.Snapshot) error
}

// DisconnectHandler receives sessions that failed a probe.
type DisconnectHandler interface {
	HandleDisconnect(id string, cause error) bool
}

// HealthMonitor samples registered sessions on a timer.
type HealthMonitor struct {
	probe        LivenessProbe
	handler      DisconnectHandler
	probeTimeout time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*model.Session
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHealthMonitor(probe LivenessProbe, handler DisconnectHandler) *HealthMonitor {
	return &HealthMonitor{
		probe:        probe,
		handler:      handler,
		probeTimeout: defaultProbeTimeout,
		logger:       log.WithComponent("health_monitor"),
		sessions:     make(map[string]*model.Session),
	}
}

// Wire builds the reconnector and health monitor around reg.
func Wire(reg *Registry, p Policy) (*Reconnector, *HealthMonitor) {
	rc := NewReconnector(reg, p)
	m := NewHealthMonitor(reg, rc)
	reg.AttachMonitor(m)
	return rc, m
}

func (m *HealthMonitor) Register(s *model.Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
}

func (m *HealthMonitor) Unregister(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Registered returns the registered session ids in sorted order.
func (m *HealthMonitor) Registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start launches the sampling loop. It is a no-op while already running.
func (m *HealthMonitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, interval, m.done)

	m.logger.Info().Dur("interval", interval).Msg("health monitor started")
}

// Stop cancels the sampling loop and waits for it.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *HealthMonitor) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce probes every registered STREAMING or PAUSED session once and
// hands failures to the disconnect handler.
func (m *HealthMonitor) CheckOnce(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}
		snap := s.Snapshot()
		if snap.Status != model.StatusStreaming && snap.Status != model.StatusPaused {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		err := m.probe.Probe(pctx, snap)
		cancel()
		if err == nil || ctx.Err() != nil {
			continue
		}

		m.logger.Warn().Err(err).
			Str(log.FieldEvent, "health.probe_failed").
			Str(log.FieldSessionID, snap.ID).
			Str("status", string(snap.Status)).
			Msg("session failed liveness probe")
		m.handler.HandleDisconnect(snap.ID, err)
	}
}
