// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package audit records an audit trail of pipeline and training activity:
// every run with its row counts, per-cause drop counts, and outcome.
// Events are buffered and written asynchronously to a store.
package audit

import (
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	// Pipeline events
	EventTypeCLVRun     EventType = "pipeline.clv_run"
	EventTypeRatingsRun EventType = "pipeline.ratings_run"

	// Training events
	EventTypeTrainingRun  EventType = "training.run"
	EventTypeJobSubmitted EventType = "training.job_submitted"
	EventTypeJobCancelled EventType = "training.job_cancelled"
)

// Outcome indicates whether the recorded activity succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit trail entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Outcome   Outcome   `json:"outcome"`

	// InputPath is the source file for pipeline runs, empty for training.
	InputPath string `json:"input_path,omitempty"`

	// Row accounting. RowsDropped maps drop cause to count.
	RowsRead    int64            `json:"rows_read,omitempty"`
	RowsKept    int64            `json:"rows_kept,omitempty"`
	RowsDropped map[string]int64 `json:"rows_dropped,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`

	// Detail carries the error message on failure, or the model handle /
	// job ID for training events.
	Detail string `json:"detail,omitempty"`
}
