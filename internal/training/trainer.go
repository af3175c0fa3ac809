// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package training integrates the feature pipelines with model training.
//
// Training itself is an external capability: the regression case delegates
// to a remote AutoML service over HTTP, the recommendation case to the
// gorse collaborative-filtering library. This package's obligations are to
// hand each trainer a table matching its expected schema, to track
// long-running jobs (blocking and submitted modes), and to surface remote
// failures distinctly without retrying them.
package training

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/monetarius/internal/models"
)

// Sentinel errors distinguishing failure kinds for callers.
var (
	// ErrRemote wraps failures of the external training service. The core
	// never retries these; retry policy belongs to the service.
	ErrRemote = errors.New("training: remote service failure")

	// ErrCancelled indicates a job was cancelled before producing a model.
	ErrCancelled = errors.New("training: job cancelled")

	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("training: job not found")

	// ErrEmptyDataset indicates the caller supplied no training rows.
	ErrEmptyDataset = errors.New("training: empty dataset")
)

// Model is a fitted predictor returned by a trainer.
type Model interface {
	// Predict scores a single feature vector.
	Predict(ctx context.Context, features map[string]float64) (float64, error)
}

// Metrics summarizes a trained model's quality.
type Metrics struct {
	// Primary names the optimization metric the scalar refers to.
	Primary string `json:"primary"`

	// Score is the primary metric value (e.g. normalized RMSE).
	Score float64 `json:"score"`

	// All holds every metric the service reported.
	All map[string]float64 `json:"all,omitempty"`
}

// FeatureImportance is one entry of the ranked explanation list.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RegressionResult is the outcome of a regression training run.
type RegressionResult struct {
	// ModelHandle identifies the fitted model at the training service.
	ModelHandle string `json:"model_handle"`

	Model   Model     `json:"-"`
	Metrics Metrics   `json:"metrics"`
	Trained time.Time `json:"trained"`

	// Importance is the ranked feature-importance explanation of the
	// best model, most important first.
	Importance []FeatureImportance `json:"importance"`
}

// RatingsResult is the outcome of a collaborative-filtering training run.
type RatingsResult struct {
	Model   Model     `json:"-"`
	Metrics Metrics   `json:"metrics"`
	Trained time.Time `json:"trained"`
}

// RegressionTrainer fits a predictor on the labeled RFM feature table.
type RegressionTrainer interface {
	// Train blocks until the service returns a fitted model or fails.
	// Cancelling ctx requests the remote job stop and yields ErrCancelled.
	Train(ctx context.Context, rows []models.LabeledRow) (*RegressionResult, error)
}

// RatingsTrainer fits a recommender on the long-format ratings table.
type RatingsTrainer interface {
	Train(ctx context.Context, rows []models.RatingRow) (*RatingsResult, error)
}
