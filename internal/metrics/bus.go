// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_bus_published_total",
		Help: "Total number of events published on the session bus by backend",
	}, []string{"backend", "topic"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_bus_dropped_total",
		Help: "Total number of session bus event drops by topic and reason",
	}, []string{"topic", "reason"})
)

// IncBusPublished records a delivered publish for the given backend.
func IncBusPublished(backend, topic string) {
	BusPublishedTotal.WithLabelValues(backend, topic).Inc()
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}
