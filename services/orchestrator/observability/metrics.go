// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the retrieval
// pipeline.
//
// # Description
//
// Metrics cover the whole request lifecycle:
//   - Request counters by effective routing and status
//   - Per-stage duration histograms (classify, sql, vector, generate, ...)
//   - Classifier decision counts by kind
//   - SQL fallback counts by failure reason
//   - Generation retry counts and retrieval hit distribution
//   - Active request gauge and embedding-cache hit/miss counters
//
// # Integration
//
// Construct once at startup with the process registry and expose it via the
// /metrics endpoint. There is no package-level singleton; the instance is
// passed into the pipeline by the composition root.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method also tolerates a nil receiver so tests can run bare.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "sportsee"

// Subsystem for the retrieval pipeline
const pipelineSubsystem = "pipeline"

// Stage labels one phase of the pipeline state machine.
type Stage string

const (
	StageClassify Stage = "classify"
	StageSQL      Stage = "sql_attempt"
	StageVector   Stage = "vector_attempt"
	StageAssemble Stage = "assemble"
	StageGenerate Stage = "generate"
	StagePersist  Stage = "persist"
)

// Metrics holds all Prometheus metrics for the retrieval pipeline.
//
// # Fields
//
//   - RequestsTotal: Counter of chat requests by routing and status.
//   - StageDurationSeconds: Histogram of per-stage wall time.
//   - ClassifierDecisionsTotal: Counter of classifications by kind.
//   - SQLFallbacksTotal: Counter of SQL-path failures by reason.
//   - GenerationRetriesTotal: Counter of chat-model retry attempts.
//   - RetrievalHits: Histogram of hits returned per vector search.
//   - ActiveRequests: Gauge of requests currently in flight.
type Metrics struct {
	RequestsTotal            *prometheus.CounterVec
	StageDurationSeconds     *prometheus.HistogramVec
	ClassifierDecisionsTotal *prometheus.CounterVec
	SQLFallbacksTotal        *prometheus.CounterVec
	GenerationRetriesTotal   prometheus.Counter
	RetrievalHits            prometheus.Histogram
	ActiveRequests           prometheus.Gauge

	registerer prometheus.Registerer
}

// NewMetrics creates and registers all pipeline metrics on the given
// registerer.
//
// # Inputs
//
//   - reg: The registry to register on. The caller owns the registry and
//     exposes it over HTTP; nil falls back to the default registerer.
//
// # Outputs
//
//   - *Metrics: Ready for concurrent use.
//
// # Limitations
//
//   - Registering twice on the same registry panics (duplicate collector),
//     as with any promauto construction.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by effective routing and status",
			},
			[]string{"routing", "status"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent in each pipeline stage",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		ClassifierDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "classifier_decisions_total",
				Help:      "Classification outcomes by kind",
			},
			[]string{"kind"},
		),

		SQLFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sql_fallbacks_total",
				Help:      "SQL path failures that triggered the vector fallback, by reason",
			},
			[]string{"reason"},
		),

		GenerationRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "generation_retries_total",
				Help:      "Chat model attempts beyond the first, across all requests",
			},
		),

		RetrievalHits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "retrieval_hits",
				Help:      "Hits returned per vector search after quality filtering",
				Buckets:   []float64{0, 1, 2, 4, 6, 8, 12, 16, 24},
			},
		),

		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_requests",
				Help:      "Chat requests currently in flight",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
//
// # Inputs
//
//   - routing: The effective routing label (sql_only, vector_only, hybrid,
//     unknown).
//   - success: Whether the request produced a response.
func (m *Metrics) RecordRequest(routing string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(routing, status).Inc()
}

// ObserveStage records the wall time of one pipeline stage.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// StageTimer starts timing a stage and returns the stop function.
//
// # Examples
//
//	stop := metrics.StageTimer(observability.StageGenerate)
//	defer stop()
func (m *Metrics) StageTimer(stage Stage) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() { m.ObserveStage(stage, time.Since(start)) }
}

// RecordClassification counts one classifier decision.
func (m *Metrics) RecordClassification(kind string) {
	if m == nil {
		return
	}
	m.ClassifierDecisionsTotal.WithLabelValues(kind).Inc()
}

// RecordSQLFallback counts one SQL-path failure by its reason kind.
func (m *Metrics) RecordSQLFallback(reason string) {
	if m == nil {
		return
	}
	m.SQLFallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordGenerationRetry counts one retry attempt against the chat model.
func (m *Metrics) RecordGenerationRetry() {
	if m == nil {
		return
	}
	m.GenerationRetriesTotal.Inc()
}

// ObserveRetrievalHits records how many hits one vector search returned.
func (m *Metrics) ObserveRetrievalHits(n int) {
	if m == nil {
		return
	}
	m.RetrievalHits.Observe(float64(n))
}

// RequestStarted increments the in-flight gauge.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.ActiveRequests.Inc()
}

// RequestEnded decrements the in-flight gauge.
func (m *Metrics) RequestEnded() {
	if m == nil {
		return
	}
	m.ActiveRequests.Dec()
}

// WatchEmbedCache exports the embedding cache's lifetime hit and miss
// counts as counters.
//
// # Description
//
// The cache keeps its own atomic counters; exporting them as CounterFuncs
// keeps the embedding package free of Prometheus imports. stats must be
// safe for concurrent use.
func (m *Metrics) WatchEmbedCache(stats func() (hits, misses uint64)) {
	if m == nil || stats == nil {
		return
	}
	factory := promauto.With(m.registerer)

	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "embed_cache_hits_total",
			Help:      "Embedding cache hits since process start",
		},
		func() float64 {
			hits, _ := stats()
			return float64(hits)
		},
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "embed_cache_misses_total",
			Help:      "Embedding cache misses since process start",
		},
		func() float64 {
			_, misses := stats()
			return float64(misses)
		},
	)
}
