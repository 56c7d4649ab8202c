/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PlayoutCyclesTotal counts selection cycles by outcome.
	PlayoutCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "playout_cycles_total",
		Help:      "Total playout cycles by result (played, skipped, failed).",
	}, []string{"result"})

	// TrackFailuresTotal counts per-track failures by pipeline stage.
	TrackFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "track_failures_total",
		Help:      "Total track failures by stage (select, fetch, probe, decode, stream).",
	}, []string{"stage"})

	// FetchDuration observes how long track fetches take.
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skald",
		Name:      "fetch_duration_seconds",
		Help:      "Track fetch duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// SilenceSecondsTotal accumulates emitted filler silence.
	SilenceSecondsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "silence_seconds_total",
		Help:      "Total seconds of filler silence written to the sink.",
	})

	// ServiceRestartsTotal counts supervised service restarts.
	ServiceRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "service_restarts_total",
		Help:      "Total supervised service restarts by service name.",
	}, []string{"service"})

	// ConsecutiveFailures gauges the current failure streak.
	ConsecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Name:      "consecutive_failures",
		Help:      "Current consecutive full-cycle failure count.",
	})

	// SinkState gauges the publisher state (0=starting 1=ready 2=streaming 3=idle 4=stopped).
	SinkState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Name:      "sink_state",
		Help:      "Encoder sink state (0=starting 1=ready 2=streaming 3=idle 4=stopped).",
	})

	// APIRequestsTotal tracks HTTP requests on the metrics/health listener.
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "api_requests_total",
		Help:      "Total HTTP requests by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration tracks HTTP request latency on the metrics/health listener.
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skald",
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Name:      "api_active_connections",
		Help:      "Number of in-flight HTTP requests.",
	})
)

func init() {
	prometheus.MustRegister(
		PlayoutCyclesTotal,
		TrackFailuresTotal,
		FetchDuration,
		SilenceSecondsTotal,
		ServiceRestartsTotal,
		ConsecutiveFailures,
		SinkState,
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveConnections,
	)
}
