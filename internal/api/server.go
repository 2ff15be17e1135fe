// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the stream control REST API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/health"
	"github.com/ManuGH/tgstream/internal/log"
)

// Sessions is the slice of the session registry the API drives.
type Sessions interface {
	Start(ctx context.Context, chat, source string, profile model.Profile) (model.Snapshot, error)
	Stop(ctx context.Context, id string) bool
	Pause(ctx context.Context, id string) bool
	Resume(ctx context.Context, id string) bool
	Get(id string) (model.Snapshot, bool)
	List() []model.Snapshot
	ListActive() []model.Snapshot
}

// Options configure a Server.
type Options struct {
	Sessions Sessions
	Health   *health.Manager
	// Metrics serves GET /metrics. Defaults to the promhttp handler of the
	// default registry.
	Metrics http.Handler
	// DefaultProfile is consulted per request so config reloads apply.
	DefaultProfile func() model.Profile

	RateLimit      int
	RateWindow     time.Duration
	TracingService string
}

// Server is the HTTP front of the relay.
type Server struct {
	sessions       Sessions
	health         *health.Manager
	metrics        http.Handler
	defaultProfile func() model.Profile
	router         chi.Router
	logger         zerolog.Logger
}

// New builds a Server and its router.
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("api: sessions are required")
	}
	if opts.Health == nil {
		return nil, errors.New("api: health manager is required")
	}
	s := &Server{
		sessions:       opts.Sessions,
		health:         opts.Health,
		metrics:        opts.Metrics,
		defaultProfile: opts.DefaultProfile,
		logger:         log.WithComponent("api"),
	}
	if s.defaultProfile == nil {
		s.defaultProfile = func() model.Profile { return model.ProfileAuto }
	}
	s.router = s.routes(opts)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler in an http.Server with conservative timeouts.
// Write timeout stays generous since Start blocks until the call is joined.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}
