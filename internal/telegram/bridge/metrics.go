// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_bridge_request_total",
			Help: "Total number of call bridge HTTP requests",
		},
		[]string{"method", "endpoint", "status_class"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgstream_bridge_request_duration_seconds",
			Help:    "Duration of call bridge HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 8),
		},
		[]string{"method", "endpoint", "status_class"},
	)
	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgstream_bridge_upload_bytes_total",
			Help: "Media bytes uploaded to the call bridge",
		},
	)
	uploadsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgstream_bridge_uploads_ended_total",
			Help: "Media uploads that ended, by outcome",
		},
		[]string{"outcome"},
	)
)

func statusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	}
	return "unknown"
}

func recordRequest(method, endpoint string, status int, duration time.Duration, err error) {
	class := statusClass(err, status)
	requestTotal.WithLabelValues(method, endpoint, class).Inc()
	requestDuration.WithLabelValues(method, endpoint, class).Observe(duration.Seconds())
}
