// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

func TestObserveTransition_StartCountsOnlyFromConnecting(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := model.NewSession("m1", 1, model.Classify("rtmp://h/live"), model.Profile480p, func() time.Time { return clock })
	require.NoError(t, s.MarkConnecting())
	require.NoError(t, s.MarkStreaming())

	labels := map[string]string{"profile": "480p", "source_type": "rtmp"}
	streamStartsTotal.WithLabelValues("480p", "rtmp")
	before := getCounterValue(t, "tgstream_stream_starts_total", labels)
	activeBefore := testutil.ToFloat64(activeStreams)

	observeTransition(s, model.StatusConnecting, model.StatusStreaming, "", "")
	observeTransition(s, model.StatusReconnecting, model.StatusStreaming, "", "")

	require.Equal(t, before+1, getCounterValue(t, "tgstream_stream_starts_total", labels))
	require.Equal(t, activeBefore+1, testutil.ToFloat64(activeStreams))

	observeTransition(s, model.StatusStreaming, model.StatusStopped, "user", "")
	require.Equal(t, activeBefore, testutil.ToFloat64(activeStreams))
}

func TestObserveTransition_ErrorAndStopLabels(t *testing.T) {
	s := model.NewSession("m2", 2, model.Classify("https://h/a.m3u8"), model.ProfileAuto, nil)

	errLabels := map[string]string{"error_type": "reconnection_exhausted"}
	stopLabels := map[string]string{"reason": "shutdown"}
	streamErrorsTotal.WithLabelValues("reconnection_exhausted")
	streamStopsTotal.WithLabelValues("shutdown")
	beforeErr := getCounterValue(t, "tgstream_stream_errors_total", errLabels)
	beforeStop := getCounterValue(t, "tgstream_stream_stops_total", stopLabels)
	beforeDur := getHistogramCount(t, "tgstream_stream_duration_seconds", map[string]string{})

	observeTransition(s, model.StatusReconnecting, model.StatusError, "", "reconnection_exhausted")
	observeTransition(s, model.StatusError, model.StatusError, "", "reconnection_exhausted")
	observeTransition(s, model.StatusConnecting, model.StatusStopped, "shutdown", "")

	require.Equal(t, beforeErr+2, getCounterValue(t, "tgstream_stream_errors_total", errLabels))
	require.Equal(t, beforeStop+1, getCounterValue(t, "tgstream_stream_stops_total", stopLabels))
	// never started: no duration sample
	require.Equal(t, beforeDur, getHistogramCount(t, "tgstream_stream_duration_seconds", map[string]string{}))
}

func getCounterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mf := findMetricFamily(t, name)
	for _, m := range mf.Metric {
		if labelsMatch(m.GetLabel(), labels) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func getHistogramCount(t *testing.T, name string, labels map[string]string) uint64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if labelsMatch(m.GetLabel(), labels) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func findMetricFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	require.FailNow(t, "metric family not found", name)
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
