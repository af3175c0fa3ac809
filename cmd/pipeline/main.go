// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package main is the one-shot batch runner. It executes the CLV and/or
// ratings pipeline against input files and writes the artifacts to the
// DuckDB store and optionally to CSV, then exits.
//
// Usage:
//
//	pipeline -run clv -input transactions.csv -csv-out labeled.csv
//	pipeline -run ratings -input events.csv
//	pipeline -run all
//
// Without -input the configured ingest paths are used. Configuration is
// loaded the same way as the server (defaults, YAML file, environment).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/monetarius/internal/clv"
	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/ingest"
	"github.com/tomtom215/monetarius/internal/logging"
	"github.com/tomtom215/monetarius/internal/models"
	"github.com/tomtom215/monetarius/internal/ratings"
	"github.com/tomtom215/monetarius/internal/store"
)

func main() {
	var (
		run    = flag.String("run", "all", "pipeline to run: clv, ratings, or all")
		input  = flag.String("input", "", "input CSV path (overrides the configured path; only valid with -run clv or -run ratings)")
		csvOut = flag.String("csv-out", "", "also write the resulting artifact table to this CSV path")
		noDB   = flag.Bool("no-db", false, "skip writing artifacts to the DuckDB store")
	)
	flag.Parse()

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

	if *input != "" && *run == "all" {
		logging.Fatal().Msg("-input requires -run clv or -run ratings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if !*noDB {
		st, err = store.Open(cfg.Database, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open artifact store")
		}
		defer func() {
			if err := st.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing artifact store")
			}
		}()
	}

	reader := ingest.NewReader(cfg.Ingest)

	switch *run {
	case "clv":
		runCLV(ctx, cfg, reader, st, *input, *csvOut)
	case "ratings":
		runRatings(ctx, cfg, reader, st, *input, *csvOut)
	case "all":
		runCLV(ctx, cfg, reader, st, "", *csvOut)
		runRatings(ctx, cfg, reader, st, "", "")
	default:
		logging.Fatal().Str("run", *run).Msg("Unknown pipeline (want clv, ratings, or all)")
	}
}

func runCLV(ctx context.Context, cfg *config.Config, reader *ingest.Reader, st *store.Store, input, csvOut string) {
	logger := logging.Logger()

	path := input
	if path == "" {
		path = cfg.Ingest.TransactionsPath
	}
	if path == "" {
		logging.Fatal().Msg("No transactions path given (-input or INGEST_TRANSACTIONS_PATH)")
	}

	pipeline := clv.NewPipeline(cfg.CLV, reader, logger)
	result, err := pipeline.Run(ctx, path)
	if err != nil {
		logging.Fatal().Err(err).Msg("CLV pipeline failed")
	}

	if st != nil {
		if err := st.ReplaceLabeled(ctx, result.Labeled); err != nil {
			logging.Fatal().Err(err).Msg("Failed to persist labeled features")
		}
	}
	if csvOut != "" {
		if err := writeLabeledCSV(csvOut, result.Labeled); err != nil {
			logging.Fatal().Err(err).Msg("Failed to write CSV output")
		}
	}

	logging.Info().
		Int("labeled_rows", len(result.Labeled)).
		Int("rfm_rows", len(result.RFM)).
		Int64("rows_read", result.IngestStats.RowsRead).
		Dur("duration", result.Duration).
		Msg("CLV pipeline finished")
}

func runRatings(ctx context.Context, cfg *config.Config, reader *ingest.Reader, st *store.Store, input, csvOut string) {
	logger := logging.Logger()

	path := input
	if path == "" {
		path = cfg.Ingest.ActionsPath
	}
	if path == "" {
		logging.Fatal().Msg("No actions path given (-input or INGEST_ACTIONS_PATH)")
	}

	pipeline, err := ratings.NewPipeline(cfg.Ratings, reader, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build ratings pipeline")
	}
	result, err := pipeline.Run(ctx, path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Ratings pipeline failed")
	}

	if st != nil {
		if err := st.ReplaceRatings(ctx, result.Ratings); err != nil {
			logging.Fatal().Err(err).Msg("Failed to persist ratings")
		}
	}
	if csvOut != "" {
		if err := writeRatingsCSV(csvOut, result.Ratings); err != nil {
			logging.Fatal().Err(err).Msg("Failed to write CSV output")
		}
	}

	logging.Info().
		Int("ratings", len(result.Ratings)).
		Int64("rows_read", result.IngestStats.RowsRead).
		Dur("duration", result.Duration).
		Msg("Ratings pipeline finished")
}

func writeLabeledCSV(path string, rows []models.LabeledRow) error {
	return writeCSV(path, []string{"customer_id", "period", "recency", "frequency", "monetary", "monetary_next"},
		len(rows), func(i int) []string {
			r := rows[i]
			return []string{
				strconv.FormatInt(r.CustomerID, 10),
				strconv.Itoa(r.Period),
				strconv.Itoa(r.Recency),
				strconv.Itoa(r.Frequency),
				strconv.FormatFloat(r.Monetary, 'f', -1, 64),
				strconv.FormatFloat(r.MonetaryNext, 'f', -1, 64),
			}
		})
}

func writeRatingsCSV(path string, rows []models.RatingRow) error {
	return writeCSV(path, []string{"item_id", "user_id", "raw_score", "rating"},
		len(rows), func(i int) []string {
			r := rows[i]
			return []string{
				strconv.FormatInt(r.ItemID, 10),
				strconv.FormatInt(r.UserID, 10),
				strconv.FormatFloat(r.RawScore, 'f', -1, 64),
				strconv.FormatFloat(r.Rating, 'f', -1, 64),
			}
		})
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	f, err := os.Create(path) //nolint:gosec // operator-supplied output path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
