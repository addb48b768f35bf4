// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics registers the Prometheus counters and histograms
// spec §2's ambient stack calls for: pipeline stage durations,
// fetch/LLM/embedding retry counts, and hybrid search latency.
// Grounded on the teacher's pkg/ingestion/metrics.go metricsIngestion
// type — a package-global struct initialized once via sync.Once and
// registered against the default Prometheus registry, with small
// package-level record helpers callers invoke without holding a
// reference to the struct.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type cartographMetrics struct {
	once sync.Once

	pipelineStageDuration *prometheus.HistogramVec
	pipelineStageFailures *prometheus.CounterVec

	fetchRetries    prometheus.Counter
	llmRetries      prometheus.Counter
	embedRetries    prometheus.Counter
	fetchBlobErrors prometheus.Counter

	searchLatency  prometheus.Histogram
	searchResults  prometheus.Histogram
	queryToolCalls *prometheus.CounterVec
	queryTurns     prometheus.Counter
}

var m cartographMetrics

func (c *cartographMetrics) init() {
	c.once.Do(func() {
		c.pipelineStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cartograph_pipeline_stage_seconds",
			Help:    "Duration of one ingestion pipeline stage",
			Buckets: durationBuckets,
		}, []string{"stage"})
		c.pipelineStageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartograph_pipeline_stage_failures_total",
			Help: "Stage-fatal failures by stage",
		}, []string{"stage"})

		c.fetchRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartograph_fetch_retries_total",
			Help: "Retries issued against the source host API",
		})
		c.llmRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartograph_llm_retries_total",
			Help: "Retries issued against an LLM provider",
		})
		c.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartograph_embed_retries_total",
			Help: "Retries issued against an embedding provider",
		})
		c.fetchBlobErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartograph_fetch_blob_errors_total",
			Help: "Per-file blob fetch failures that were skipped, not fatal",
		})

		c.searchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartograph_search_latency_seconds",
			Help:    "Hybrid search request latency",
			Buckets: durationBuckets,
		})
		c.searchResults = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartograph_search_result_count",
			Help:    "Number of results returned by a hybrid search call",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		})
		c.queryToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartograph_query_tool_calls_total",
			Help: "Tool invocations issued by the query engine's tool loop, by tool name",
		}, []string{"tool"})
		c.queryTurns = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartograph_query_turns_total",
			Help: "Completed conversation turns",
		})

		prometheus.MustRegister(
			c.pipelineStageDuration, c.pipelineStageFailures,
			c.fetchRetries, c.llmRetries, c.embedRetries, c.fetchBlobErrors,
			c.searchLatency, c.searchResults, c.queryToolCalls, c.queryTurns,
		)
	})
}

// ObservePipelineStage records a stage's wall-clock duration.
func ObservePipelineStage(stage string, d time.Duration) {
	m.init()
	m.pipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageFailure increments the stage-fatal failure counter for stage.
func RecordStageFailure(stage string) {
	m.init()
	m.pipelineStageFailures.WithLabelValues(stage).Inc()
}

// RecordFetchRetry increments the source-host retry counter.
func RecordFetchRetry() { m.init(); m.fetchRetries.Inc() }

// RecordLLMRetry increments the LLM provider retry counter.
func RecordLLMRetry() { m.init(); m.llmRetries.Inc() }

// RecordEmbedRetry increments the embedding provider retry counter.
func RecordEmbedRetry() { m.init(); m.embedRetries.Inc() }

// RecordFetchBlobError increments the per-file best-effort blob error counter.
func RecordFetchBlobError() { m.init(); m.fetchBlobErrors.Inc() }

// ObserveSearch records one hybrid search call's latency and result count.
func ObserveSearch(d time.Duration, resultCount int) {
	m.init()
	m.searchLatency.Observe(d.Seconds())
	m.searchResults.Observe(float64(resultCount))
}

// RecordToolCall increments the per-tool invocation counter.
func RecordToolCall(tool string) {
	m.init()
	m.queryToolCalls.WithLabelValues(tool).Inc()
}

// RecordQueryTurn increments the completed-turn counter.
func RecordQueryTurn() { m.init(); m.queryTurns.Inc() }

// Registry exposes the default Prometheus registry for the HTTP
// /metrics handler to serve, matching promhttp.Handler()'s use of
// prometheus.DefaultGatherer.
func Registry() prometheus.Gatherer { m.init(); return prometheus.DefaultGatherer }
