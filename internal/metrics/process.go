// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_process_signal_total",
		Help: "Signals sent to supervised process groups by signal and result",
	}, []string{"signal", "result"})

	procStopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_process_stop_total",
		Help: "Supervised process stops by outcome (exited, terminated, killed)",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcStop records how a supervised process ended after a stop request.
func IncProcStop(outcome string) {
	procStopTotal.WithLabelValues(outcome).Inc()
}
