// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package clv

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

// Result is the output of one CLV pipeline run: the labeled training table
// plus the intermediate aggregates and audit counts.
type Result struct {
	Labeled     []models.LabeledRow `json:"labeled"`
	RFM         []models.RFMRow     `json:"rfm"`
	IngestStats *ingest.Stats       `json:"ingest_stats"`
	FilterStats FilterStats         `json:"filter_stats"`
	Duration    time.Duration       `json:"duration"`
}

// Pipeline runs the full transaction-log-to-labeled-table transformation.
// It is a pure function of its input file and configuration; either a full
// labeled table is produced or the run fails.
type Pipeline struct {
	cfg    config.CLVConfig
	reader *ingest.Reader
	logger zerolog.Logger
}

// NewPipeline creates a CLV pipeline.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPipeline(cfg config.CLVConfig, reader *ingest.Reader, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		reader: reader,
		logger: logger.With().Str("component", "clv").Logger(),
	}
}

// Run executes the pipeline against the transaction file at path.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	result, err := p.run(ctx, path)
	metrics.ObservePipeline("clv", start, err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	p.logger.Info().
		Int("rfm_rows", len(result.RFM)).
		Int("labeled_rows", len(result.Labeled)).
		Dur("duration", result.Duration).
		Msg("pipeline finished")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txs, ingestStats, err := p.reader.Transactions(path)
	if err != nil {
		return nil, fmt.Errorf("clv: load transactions: %w", err)
	}

	filtered, filterStats := FilterOutliers(txs, p.cfg.MaxQuantity, p.cfg.MaxUnitPrice)
	p.logger.Debug().
		Int64("non_positive", filterStats.NonPositive).
		Int64("outlier", filterStats.Outlier).
		Int("kept", len(filtered)).
		Msg("outlier filter applied")

	bucketing, err := NewBucketing(p.cfg)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rfm, err := Aggregate(filtered, bucketing)
	if err != nil {
		return nil, err
	}

	labeled, err := JoinLabels(rfm)
	if err != nil {
		return nil, err
	}

	return &Result{
		Labeled:     labeled,
		RFM:         rfm,
		IngestStats: ingestStats,
		FilterStats: filterStats,
	}, nil
}
