// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/tgstream/internal/api/middleware"
)

func (s *Server) routes(opts Options) chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        opts.TracingService,
		EnableLogging:         true,
		RateLimit:             opts.RateLimit,
		RateWindow:            opts.RateWindow,
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", s.health.ServeHealth)
	r.Get("/ready", s.health.ServeReady)

	metrics := s.metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api/streams", func(r chi.Router) {
		r.Post("/", s.handleStartStream)
		r.Get("/", s.handleListStreams)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetStream)
			r.Delete("/", s.handleStopStream)
			r.Post("/pause", s.handlePauseStream)
			r.Post("/resume", s.handleResumeStream)
		})
	})
	return r
}
