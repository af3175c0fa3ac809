// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/audit"
	"github.com/tomtom215/monetarius/internal/clv"
	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/ingest"
	"github.com/tomtom215/monetarius/internal/ratings"
	"github.com/tomtom215/monetarius/internal/store"
	"github.com/tomtom215/monetarius/internal/training"
)

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	cfg     *config.Config
	store   *store.Store
	clv     *clv.Pipeline
	ratings *ratings.Pipeline
	jobs    *training.Manager
	automl  training.RegressionTrainer
	svd     training.RatingsTrainer
	audit   *audit.Recorder
	logger  zerolog.Logger
}

// NewHandler wires the API handler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(cfg *config.Config, st *store.Store, clvPipeline *clv.Pipeline,
	ratingsPipeline *ratings.Pipeline, jobs *training.Manager,
	automlClient *training.AutoMLClient, svdTrainer *training.SVDTrainer,
	recorder *audit.Recorder, logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   st,
		clv:     clvPipeline,
		ratings: ratingsPipeline,
		jobs:    jobs,
		automl:  automlClient,
		svd:     svdTrainer,
		audit:   recorder,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Health reports liveness and the artifact store's reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("store unreachable")
		status = "degraded"
	}
	rw.Success(map[string]string{"status": status})
}

// RunCLV runs the CLV pipeline and persists the labeled feature table.
func (h *Handler) RunCLV(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	path, ok := h.inputPath(rw, r, h.cfg.Ingest.TransactionsPath)
	if !ok {
		return
	}

	result, err := h.clv.Run(r.Context(), path)
	if err != nil {
		h.auditEvent(&audit.Event{
			Type: audit.EventTypeCLVRun, Outcome: audit.OutcomeFailure,
			InputPath: path, Detail: err.Error(),
		})
		h.pipelineError(rw, err)
		return
	}
	if err := h.store.ReplaceLabeled(r.Context(), result.Labeled); err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeCLVRun, Outcome: audit.OutcomeSuccess,
		InputPath:   path,
		RowsRead:    result.IngestStats.RowsRead,
		RowsKept:    result.IngestStats.RowsKept - result.FilterStats.NonPositive - result.FilterStats.Outlier,
		RowsDropped: clvDropCounts(result),
		DurationMs:  result.Duration.Milliseconds(),
	})

	rw.Success(map[string]any{
		"labeled_rows": len(result.Labeled),
		"rfm_rows":     len(result.RFM),
		"ingest_stats": result.IngestStats,
		"filter_stats": result.FilterStats,
		"duration_ms":  result.Duration.Milliseconds(),
	})
}

// RunRatings runs the ratings pipeline and persists the ratings table.
func (h *Handler) RunRatings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	path, ok := h.inputPath(rw, r, h.cfg.Ingest.ActionsPath)
	if !ok {
		return
	}

	result, err := h.ratings.Run(r.Context(), path)
	if err != nil {
		h.auditEvent(&audit.Event{
			Type: audit.EventTypeRatingsRun, Outcome: audit.OutcomeFailure,
			InputPath: path, Detail: err.Error(),
		})
		h.pipelineError(rw, err)
		return
	}
	if err := h.store.ReplaceRatings(r.Context(), result.Ratings); err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeRatingsRun, Outcome: audit.OutcomeSuccess,
		InputPath:   path,
		RowsRead:    result.IngestStats.RowsRead,
		RowsKept:    result.IngestStats.RowsKept,
		RowsDropped: result.IngestStats.RowsDropped,
		DurationMs:  result.Duration.Milliseconds(),
	})

	rw.Success(map[string]any{
		"ratings":      len(result.Ratings),
		"ingest_stats": result.IngestStats,
		"duration_ms":  result.Duration.Milliseconds(),
	})
}

// LabeledFeatures returns the persisted labeled feature table.
func (h *Handler) LabeledFeatures(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rows, err := h.store.LoadLabeled(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	rw.Success(rows)
}

// Ratings returns the persisted ratings table.
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rows, err := h.store.LoadRatings(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	rw.Success(rows)
}

// Train starts a training run in blocking or submitted mode. The trainer
// reads its input table from the artifact store, so the matching pipeline
// must have run first.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req trainRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	switch {
	case req.Trainer == "automl" && req.Blocking:
		h.trainAutoMLBlocking(rw, r)
	case req.Trainer == "automl":
		h.trainAutoMLSubmitted(rw, r)
	case req.Blocking:
		h.trainSVDBlocking(rw, r)
	default:
		h.trainSVDSubmitted(rw, r)
	}
}

func (h *Handler) trainAutoMLBlocking(rw *ResponseWriter, r *http.Request) {
	rows, err := h.store.LoadLabeled(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	result, err := h.automl.Train(r.Context(), rows)
	if err != nil {
		h.auditEvent(&audit.Event{
			Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeFailure,
			Detail: "automl: " + err.Error(),
		})
		h.trainingError(rw, err)
		return
	}
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeSuccess,
		Detail: "automl: " + result.ModelHandle,
	})
	h.recordRun(r, &store.TrainingRun{
		ID:          uuid.NewString(),
		Kind:        "automl",
		ModelHandle: result.ModelHandle,
		Metrics:     result.Metrics,
		Importance:  result.Importance,
		TrainedAt:   result.Trained,
	})
	rw.Success(result)
}

func (h *Handler) trainAutoMLSubmitted(rw *ResponseWriter, r *http.Request) {
	rows, err := h.store.LoadLabeled(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if len(rows) == 0 {
		rw.Error(http.StatusBadRequest, ErrCodeEmptyInput, training.ErrEmptyDataset.Error())
		return
	}

	client, ok := h.automl.(*training.AutoMLClient)
	if !ok {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "automl trainer does not support submitted mode")
		return
	}
	record := h.jobs.Submit("automl", h.runAndRecord("automl", client.TrainJob(rows)))
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeJobSubmitted, Outcome: audit.OutcomeSuccess,
		Detail: "automl: " + record.ID,
	})
	rw.Accepted(record)
}

func (h *Handler) trainSVDBlocking(rw *ResponseWriter, r *http.Request) {
	rows, err := h.store.LoadRatings(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	result, err := h.svd.Train(r.Context(), rows)
	if err != nil {
		h.auditEvent(&audit.Event{
			Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeFailure,
			Detail: "svd: " + err.Error(),
		})
		h.trainingError(rw, err)
		return
	}
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeSuccess,
		Detail: "svd",
	})
	h.recordRun(r, &store.TrainingRun{
		ID:        uuid.NewString(),
		Kind:      "svd",
		Metrics:   result.Metrics,
		TrainedAt: result.Trained,
	})
	rw.Success(result)
}

func (h *Handler) trainSVDSubmitted(rw *ResponseWriter, r *http.Request) {
	rows, err := h.store.LoadRatings(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if len(rows) == 0 {
		rw.Error(http.StatusBadRequest, ErrCodeEmptyInput, training.ErrEmptyDataset.Error())
		return
	}

	trainer, ok := h.svd.(*training.SVDTrainer)
	if !ok {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "svd trainer does not support submitted mode")
		return
	}
	record := h.jobs.Submit("svd", h.runAndRecord("svd", trainer.TrainJob(rows)))
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeJobSubmitted, Outcome: audit.OutcomeSuccess,
		Detail: "svd: " + record.ID,
	})
	rw.Accepted(record)
}

// runAndRecord wraps a job function so successful runs land in the
// training_runs audit table.
func (h *Handler) runAndRecord(kind string, fn training.JobFunc) training.JobFunc {
	return func(ctx context.Context, reportRemoteID func(string)) (any, error) {
		result, err := fn(ctx, reportRemoteID)
		if err != nil {
			h.auditEvent(&audit.Event{
				Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeFailure,
				Detail: kind + ": " + err.Error(),
			})
			return nil, err
		}
		h.auditEvent(&audit.Event{
			Type: audit.EventTypeTrainingRun, Outcome: audit.OutcomeSuccess,
			Detail: kind,
		})

		run := &store.TrainingRun{ID: uuid.NewString(), Kind: kind, TrainedAt: time.Now().UTC()}
		switch res := result.(type) {
		case *training.RegressionResult:
			run.ModelHandle = res.ModelHandle
			run.Metrics = res.Metrics
			run.Importance = res.Importance
			run.TrainedAt = res.Trained
		case *training.RatingsResult:
			run.Metrics = res.Metrics
			run.TrainedAt = res.Trained
		}
		h.saveRun(ctx, run)
		return result, nil
	}
}

// JobStatus returns one job's record.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	record, err := h.jobs.Status(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, training.ErrJobNotFound) {
			rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	rw.Success(record)
}

// Jobs lists all known jobs, newest first.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.jobs.List())
}

// CancelJob requests cancellation of a running job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if err := h.jobs.Cancel(id); err != nil {
		if errors.Is(err, training.ErrJobNotFound) {
			rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	h.auditEvent(&audit.Event{
		Type: audit.EventTypeJobCancelled, Outcome: audit.OutcomeSuccess,
		Detail: id,
	})
	rw.Success(map[string]string{"status": "cancellation requested"})
}

// TrainingRuns lists the audit trail of completed training runs.
func (h *Handler) TrainingRuns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	runs, err := h.store.ListTrainingRuns(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	rw.Success(runs)
}

// AuditEvents returns the recent audit trail, newest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.audit == nil {
		rw.Success([]audit.Event{})
		return
	}
	events, err := h.audit.Recent(r.Context(), 100)
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	rw.Success(events)
}

// inputPath resolves the run input path from the request body, falling
// back to the configured default.
func (h *Handler) inputPath(rw *ResponseWriter, r *http.Request, fallback string) (string, bool) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return "", false
	}
	path := req.Path
	if path == "" {
		path = fallback
	}
	if path == "" {
		rw.Error(http.StatusBadRequest, ErrCodeBadRequest, "no input path given and none configured")
		return "", false
	}
	return path, true
}

func (h *Handler) pipelineError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrEmptyInput), errors.Is(err, ratings.ErrNoRatings):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeEmptyInput, err.Error())
	default:
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

func (h *Handler) trainingError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, training.ErrEmptyDataset):
		rw.Error(http.StatusBadRequest, ErrCodeEmptyInput, err.Error())
	case errors.Is(err, training.ErrRemote):
		rw.Error(http.StatusBadGateway, ErrCodeExternalServiceFail, err.Error())
	default:
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// auditEvent records an audit trail entry when a recorder is wired.
func (h *Handler) auditEvent(event *audit.Event) {
	if h.audit != nil {
		h.audit.Record(event)
	}
}

// clvDropCounts merges the ingest and outlier-filter drop counts into a
// single cause-to-count map.
func clvDropCounts(result *clv.Result) map[string]int64 {
	drops := make(map[string]int64, len(result.IngestStats.RowsDropped)+2)
	for cause, n := range result.IngestStats.RowsDropped {
		drops[cause] = n
	}
	if result.FilterStats.NonPositive > 0 {
		drops["non_positive"] = result.FilterStats.NonPositive
	}
	if result.FilterStats.Outlier > 0 {
		drops["outlier"] = result.FilterStats.Outlier
	}
	return drops
}

func (h *Handler) recordRun(r *http.Request, run *store.TrainingRun) {
	h.saveRun(r.Context(), run)
}

// saveRun appends the run to the audit table. Persistence failures are
// logged, not surfaced: the training result itself already reached the
// caller.
func (h *Handler) saveRun(ctx context.Context, run *store.TrainingRun) {
	if err := h.store.SaveTrainingRun(ctx, run); err != nil {
		h.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record training run")
	}
}
