// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

var (
	streamStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_stream_starts_total",
			Help: "Sessions that reached streaming for the first time, by profile and source type.",
		},
		[]string{"profile", "source_type"},
	)

	streamStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_stream_stops_total",
			Help: "Sessions that ended in stopped, by reason.",
		},
		[]string{"reason"},
	)

	streamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_stream_errors_total",
			Help: "Errors recorded on sessions, by error type.",
		},
		[]string{"error_type"},
	)

	activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgstream_active_streams",
			Help: "Sessions currently streaming, paused or reconnecting.",
		},
	)

	reconnectionAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgstream_reconnection_attempts_total",
			Help: "Reconnection attempts started.",
		},
	)

	streamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tgstream_stream_duration_seconds",
			Help:    "Streaming duration of sessions that ended.",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		},
	)

	sessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_session_transitions_total",
			Help: "Session state machine transitions.",
		},
		[]string{"from", "to"},
	)
)

// observeTransition updates every metric affected by from -> to.
// stopReason and errorType are only read for the matching target states.
func observeTransition(s *model.Session, from, to model.Status, stopReason, errorType string) {
	sessionTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	switch {
	case !from.IsActive() && to.IsActive():
		activeStreams.Inc()
	case from.IsActive() && !to.IsActive():
		activeStreams.Dec()
	}

	switch to {
	case model.StatusStreaming:
		if from == model.StatusConnecting {
			streamStartsTotal.WithLabelValues(string(s.Profile()), string(s.Source().Kind)).Inc()
		}
	case model.StatusReconnecting:
		reconnectionAttemptsTotal.Inc()
	case model.StatusError:
		streamErrorsTotal.WithLabelValues(errorType).Inc()
	case model.StatusStopped:
		streamStopsTotal.WithLabelValues(stopReason).Inc()
	}

	if to.IsTerminal() && !from.IsTerminal() {
		if d := s.Duration(); d > 0 {
			streamDuration.Observe(d.Seconds())
		}
	}
}
