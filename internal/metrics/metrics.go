// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package metrics exposes Prometheus instrumentation for Monetarius:
// ingest drop counts (data-quality audit), pipeline durations, artifact
// store queries, and training job lifecycle counters.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics. Data-quality errors are handled by silent row
	// exclusion; these counters are the audit trail.
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_read_total",
			Help: "Total rows read from input files",
		},
		[]string{"source"}, // "transactions", "actions"
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_dropped_total",
			Help: "Total rows silently excluded during loading and filtering",
		},
		[]string{"source", "reason"}, // "missing_id", "bad_timestamp", "non_positive", "outlier", ...
	)

	// Pipeline metrics
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"}, // "clv", "ratings"
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"pipeline", "outcome"}, // outcome: "success", "failure"
	)

	// Artifact store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Training job metrics
	TrainingJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_total",
			Help: "Total training jobs by trainer and terminal state",
		},
		[]string{"trainer", "state"}, // trainer: "automl", "svd"; state: "succeeded", "failed", "cancelled"
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Wall-clock duration of training jobs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		},
		[]string{"trainer"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests by method, route pattern, and status code",
		},
		[]string{"method", "endpoint", "status"},
	)
)

// ObserveRequest records one handled API request.
func ObserveRequest(method, endpoint string, status int) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// ObservePipeline records a completed pipeline run.
func ObservePipeline(pipeline string, start time.Time, err error) {
	PipelineDuration.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	PipelineRuns.WithLabelValues(pipeline, outcome).Inc()
}

// ObserveQuery records a DuckDB query against the artifact store.
func ObserveQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
