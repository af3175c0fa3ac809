// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package main is the entry point for the Monetarius server.
//
// Monetarius derives customer-value features and implicit recommendation
// ratings from raw retail event logs, persists the artifacts in DuckDB,
// and hands them to model training (remote AutoML regression or
// in-process SVD collaborative filtering).
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML, env)
//  2. Artifact store: DuckDB tables for features, ratings, training runs
//  3. Job manager: BadgerDB-backed training job tracking
//  4. Trainers: AutoML HTTP client and gorse SVD trainer
//  5. Supervisor tree: scheduled refresh worker + HTTP API under suture
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, running training jobs are awaited, and the
// stores are closed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/monetarius/internal/api"
	"github.com/tomtom215/monetarius/internal/audit"
	"github.com/tomtom215/monetarius/internal/clv"
	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/ingest"
	"github.com/tomtom215/monetarius/internal/logging"
	"github.com/tomtom215/monetarius/internal/ratings"
	"github.com/tomtom215/monetarius/internal/store"
	"github.com/tomtom215/monetarius/internal/supervisor"
	"github.com/tomtom215/monetarius/internal/supervisor/services"
	"github.com/tomtom215/monetarius/internal/training"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("transactions_path", cfg.Ingest.TransactionsPath).
		Str("actions_path", cfg.Ingest.ActionsPath).
		Msg("Configuration loaded")

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing artifact store")
		}
	}()

	auditStore := audit.NewDuckDBStore(st.DB())
	if err := auditStore.CreateTable(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit table")
	}
	recorder := audit.NewRecorder(auditStore, 0, logger)
	defer recorder.Close()

	var jobStore *training.JobStore
	if cfg.Training.JobStorePath != "" {
		jobStore, err = training.OpenJobStore(cfg.Training.JobStorePath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open job store")
		}
		defer func() {
			if err := jobStore.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing job store")
			}
		}()
	}
	jobs := training.NewManager(jobStore, logger)

	reader := ingest.NewReader(cfg.Ingest)
	clvPipeline := clv.NewPipeline(cfg.CLV, reader, logger)
	ratingsPipeline, err := ratings.NewPipeline(cfg.Ratings, reader, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build ratings pipeline")
	}

	automlClient := training.NewAutoMLClient(cfg.Training.AutoML, logger)
	svdTrainer := training.NewSVDTrainer(cfg.Training.SVD, cfg.Ratings.Scale, logger)

	handler := api.NewHandler(cfg, st, clvPipeline, ratingsPipeline, jobs, automlClient, svdTrainer, recorder, logger)
	router := api.NewRouter(cfg.Server, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))

	if cfg.Refresh.Enabled {
		refresher := &artifactRefresher{
			store:   st,
			clv:     clvPipeline,
			ratings: ratingsPipeline,
			cfg:     cfg,
		}
		tree.AddWorkerService(services.NewRefreshService(refresher, services.RefreshServiceConfig{
			RunOnStartup: cfg.Refresh.RunOnStartup,
			Interval:     cfg.Refresh.Interval,
		}, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting Monetarius")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree exited")
		os.Exit(1)
	}

	// Let in-flight training jobs reach a terminal state so their records
	// are persisted before the stores close.
	logging.Info().Msg("Waiting for training jobs to finish")
	jobs.Wait()
	logging.Info().Msg("Shutdown complete")
}

// artifactRefresher re-runs both pipelines and persists their artifacts.
type artifactRefresher struct {
	store   *store.Store
	clv     *clv.Pipeline
	ratings *ratings.Pipeline
	cfg     *config.Config
}

func (r *artifactRefresher) Refresh(ctx context.Context) error {
	if path := r.cfg.Ingest.TransactionsPath; path != "" {
		result, err := r.clv.Run(ctx, path)
		if err != nil {
			return fmt.Errorf("clv refresh: %w", err)
		}
		if err := r.store.ReplaceLabeled(ctx, result.Labeled); err != nil {
			return err
		}
	}
	if path := r.cfg.Ingest.ActionsPath; path != "" {
		result, err := r.ratings.Run(ctx, path)
		if err != nil {
			return fmt.Errorf("ratings refresh: %w", err)
		}
		if err := r.store.ReplaceRatings(ctx, result.Ratings); err != nil {
			return err
		}
	}
	return nil
}
