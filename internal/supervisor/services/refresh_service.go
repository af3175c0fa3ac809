// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ArtifactRefresher re-derives pipeline artifacts from the raw inputs.
type ArtifactRefresher interface {
	Refresh(ctx context.Context) error
}

// RefreshServiceConfig holds the schedule for artifact refreshes.
type RefreshServiceConfig struct {
	// RunOnStartup triggers a refresh when the service starts.
	RunOnStartup bool

	// Interval is how often artifacts are re-derived.
	Interval time.Duration

	// Timeout bounds a single refresh cycle.
	Timeout time.Duration
}

// RefreshService periodically re-runs the pipelines so artifacts track
// the input files. Refresh failures are logged and retried on the next
// tick; the service itself stays up.
type RefreshService struct {
	refresher ArtifactRefresher
	config    RefreshServiceConfig
	logger    zerolog.Logger
}

// NewRefreshService creates a scheduled artifact refresh service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRefreshService(refresher ArtifactRefresher, cfg RefreshServiceConfig, logger zerolog.Logger) *RefreshService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &RefreshService{
		refresher: refresher,
		config:    cfg,
		logger:    logger.With().Str("service", "refresh").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RefreshService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("refresh service starting")

	if s.config.RunOnStartup {
		if err := s.refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup refresh failed (will retry on schedule)")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refresh service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}

func (s *RefreshService) refresh(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.refresher.Refresh(refreshCtx); err != nil {
		return err
	}
	s.logger.Info().Dur("duration", time.Since(start)).Msg("artifacts refreshed")
	return nil
}

// String implements suture's service naming.
func (s *RefreshService) String() string {
	return "artifact-refresh"
}
