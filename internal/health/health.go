// SPDX-License-Identifier: MIT

// Package health reports liveness and readiness of the relay: active
// streams, call-bridge connectivity and component checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/tgstream/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 3 * time.Second

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            Status                 `json:"status"`
	Version           string                 `json:"version,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
	UptimeSeconds     float64                `json:"uptime_seconds"`
	TelegramConnected bool                   `json:"telegram_connected"`
	ActiveStreams     int                    `json:"active_streams"`
	Checks            map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Streamer exposes the session registry to health reporting.
type Streamer interface {
	ActiveStreams() int
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func() int

func (f StreamerFunc) ActiveStreams() int { return f() }

// Manager manages health and readiness checks
type Manager struct {
	version string
	started time.Time
	now     func() time.Time

	mu        sync.RWMutex
	checkers  []Checker
	streamer  Streamer
	connected func(ctx context.Context) error
	timeout   time.Duration
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version: version,
		started: time.Now(),
		now:     time.Now,
		timeout: defaultCheckTimeout,
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// SetStreamer wires the active stream count.
func (m *Manager) SetStreamer(s Streamer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamer = s
}

// SetConnectivity wires the call-bridge reachability probe. Without one
// the relay reports itself disconnected.
func (m *Manager) SetConnectivity(ping func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = ping
}

func (m *Manager) snapshot() ([]Checker, Streamer, func(context.Context) error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Checker(nil), m.checkers...), m.streamer, m.connected
}

// Health reports liveness. The relay is healthy when the call bridge is
// reachable and degraded otherwise. With verbose set, component checks are
// included and an unhealthy component marks the whole relay unhealthy.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	checkers, streamer, ping := m.snapshot()
	now := m.now()

	resp := HealthResponse{
		Status:        StatusHealthy,
		Version:       m.version,
		Timestamp:     now,
		UptimeSeconds: now.Sub(m.started).Seconds(),
	}
	if streamer != nil {
		resp.ActiveStreams = streamer.ActiveStreams()
	}
	if ping != nil {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		resp.TelegramConnected = ping(pctx) == nil
		cancel()
	}
	if !resp.TelegramConnected {
		resp.Status = StatusDegraded
	}

	if verbose && len(checkers) > 0 {
		resp.Checks = m.runChecks(ctx, checkers)
		resp.Status = worst(resp.Status, resp.Checks)
	}
	return resp
}

// Ready reports whether the relay can take new streams: every component
// check must be at least degraded.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checkers, _, _ := m.snapshot()
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: m.now(),
	}
	if len(checkers) == 0 {
		return resp
	}

	resp.Checks = m.runChecks(ctx, checkers)
	resp.Status = worst(StatusHealthy, resp.Checks)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) runChecks(ctx context.Context, checkers []Checker) map[string]CheckResult {
	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		results[c.Name()] = c.Check(cctx)
		cancel()
	}
	return results
}

func worst(base Status, checks map[string]CheckResult) Status {
	out := base
	for _, r := range checks {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			out = StatusDegraded
		}
	}
	return out
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}
