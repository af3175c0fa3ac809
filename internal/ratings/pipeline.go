// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package ratings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/ingest"
	"github.com/tomtom215/monetarius/internal/metrics"
	"github.com/tomtom215/monetarius/internal/models"
)

// Result is the output of one ratings pipeline run.
type Result struct {
	Ratings     []models.RatingRow `json:"ratings"`
	IngestStats *ingest.Stats      `json:"ingest_stats"`
	Duration    time.Duration      `json:"duration"`
}

// Pipeline runs the action-log-to-ratings-table transformation.
type Pipeline struct {
	deriver *Deriver
	reader  *ingest.Reader
	logger  zerolog.Logger
}

// NewPipeline creates a ratings pipeline from configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPipeline(cfg config.RatingsConfig, reader *ingest.Reader, logger zerolog.Logger) (*Pipeline, error) {
	deriver, err := NewDeriver(cfg.ActionWeights, cfg.Scale)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		deriver: deriver,
		reader:  reader,
		logger:  logger.With().Str("component", "ratings").Logger(),
	}, nil
}

// Run executes the pipeline against the action file at path.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	result, err := p.run(ctx, path)
	metrics.ObservePipeline("ratings", start, err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	p.logger.Info().
		Int("ratings", len(result.Ratings)).
		Dur("duration", result.Duration).
		Msg("pipeline finished")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, stats, err := p.reader.Actions(path)
	if err != nil {
		return nil, fmt.Errorf("ratings: load actions: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := p.deriver.Derive(events)
	if err != nil {
		return nil, err
	}

	return &Result{Ratings: rows, IngestStats: stats}, nil
}
