// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package store persists pipeline artifacts in DuckDB.
//
// Every pipeline run replaces its tables wholesale: artifacts are derived
// data, recomputed from the raw event logs, so the store never merges or
// migrates rows. Training run summaries are append-only for audit.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/metrics"
	"github.com/tomtom215/monetarius/internal/models"
	"github.com/tomtom215/monetarius/internal/training"
)

// Store wraps the DuckDB connection holding pipeline artifacts.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open creates a DuckDB-backed store at cfg.Path and initializes the
// schema. Use ":memory:" for ephemeral one-shot runs.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("store: create database directory %s: %w", dir, err)
			}
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: ping duckdb: %w", err)
	}

	s := &Store{
		conn:   conn,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := s.createTables(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.logger.Info().Str("path", cfg.Path).Msg("artifact store opened")
	return s, nil
}

// createTables creates the artifact tables.
func (s *Store) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS labeled_features (
			customer_id BIGINT NOT NULL,
			period INTEGER NOT NULL,
			recency INTEGER NOT NULL,
			frequency INTEGER NOT NULL,
			monetary DOUBLE NOT NULL,
			monetary_next DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			item_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			raw_score DOUBLE NOT NULL,
			rating DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			model_handle TEXT,
			primary_metric TEXT NOT NULL,
			score DOUBLE NOT NULL,
			metrics_json TEXT,
			importance_json TEXT,
			trained_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("store: create tables: %w", err)
		}
	}
	return nil
}

// ReplaceLabeled replaces the labeled feature table with rows.
func (s *Store) ReplaceLabeled(ctx context.Context, rows []models.LabeledRow) error {
	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM labeled_features`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO labeled_features (customer_id, period, recency, frequency, monetary, monetary_next)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck // statement cleanup
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				r.CustomerID, r.Period, r.Recency, r.Frequency, r.Monetary, r.MonetaryNext); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.ObserveQuery("replace", "labeled_features", start, err)
	if err != nil {
		return fmt.Errorf("store: replace labeled features: %w", err)
	}
	s.logger.Info().Int("rows", len(rows)).Msg("labeled features saved")
	return nil
}

// LoadLabeled reads the full labeled feature table.
func (s *Store) LoadLabeled(ctx context.Context) ([]models.LabeledRow, error) {
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT customer_id, period, recency, frequency, monetary, monetary_next
		 FROM labeled_features ORDER BY customer_id, period`)
	metrics.ObserveQuery("select", "labeled_features", start, err)
	if err != nil {
		return nil, fmt.Errorf("store: load labeled features: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows cleanup

	var out []models.LabeledRow
	for rows.Next() {
		var r models.LabeledRow
		if err := rows.Scan(&r.CustomerID, &r.Period, &r.Recency, &r.Frequency, &r.Monetary, &r.MonetaryNext); err != nil {
			return nil, fmt.Errorf("store: scan labeled row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate labeled features: %w", err)
	}
	return out, nil
}

// ReplaceRatings replaces the ratings table with rows.
func (s *Store) ReplaceRatings(ctx context.Context, rows []models.RatingRow) error {
	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ratings`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO ratings (item_id, user_id, raw_score, rating) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck // statement cleanup
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ItemID, r.UserID, r.RawScore, r.Rating); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.ObserveQuery("replace", "ratings", start, err)
	if err != nil {
		return fmt.Errorf("store: replace ratings: %w", err)
	}
	s.logger.Info().Int("rows", len(rows)).Msg("ratings saved")
	return nil
}

// LoadRatings reads the full ratings table.
func (s *Store) LoadRatings(ctx context.Context) ([]models.RatingRow, error) {
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT item_id, user_id, raw_score, rating FROM ratings ORDER BY item_id, user_id`)
	metrics.ObserveQuery("select", "ratings", start, err)
	if err != nil {
		return nil, fmt.Errorf("store: load ratings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows cleanup

	var out []models.RatingRow
	for rows.Next() {
		var r models.RatingRow
		if err := rows.Scan(&r.ItemID, &r.UserID, &r.RawScore, &r.Rating); err != nil {
			return nil, fmt.Errorf("store: scan rating row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate ratings: %w", err)
	}
	return out, nil
}

// TrainingRun is the persisted summary of one completed training run.
type TrainingRun struct {
	ID          string                       `json:"id"`
	Kind        string                       `json:"kind"`
	ModelHandle string                       `json:"model_handle,omitempty"`
	Metrics     training.Metrics             `json:"metrics"`
	Importance  []training.FeatureImportance `json:"importance,omitempty"`
	TrainedAt   time.Time                    `json:"trained_at"`
}

// SaveTrainingRun appends a training run summary.
func (s *Store) SaveTrainingRun(ctx context.Context, run *TrainingRun) error {
	metricsJSON, err := json.Marshal(run.Metrics.All)
	if err != nil {
		return fmt.Errorf("store: marshal run metrics: %w", err)
	}
	importanceJSON, err := json.Marshal(run.Importance)
	if err != nil {
		return fmt.Errorf("store: marshal run importance: %w", err)
	}

	start := time.Now()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO training_runs (id, kind, model_handle, primary_metric, score, metrics_json, importance_json, trained_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.ModelHandle, run.Metrics.Primary, run.Metrics.Score,
		string(metricsJSON), string(importanceJSON), run.TrainedAt)
	metrics.ObserveQuery("insert", "training_runs", start, err)
	if err != nil {
		return fmt.Errorf("store: save training run: %w", err)
	}
	return nil
}

// ListTrainingRuns returns all training run summaries, newest first.
func (s *Store) ListTrainingRuns(ctx context.Context) ([]TrainingRun, error) {
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, kind, model_handle, primary_metric, score, metrics_json, importance_json, trained_at
		 FROM training_runs ORDER BY trained_at DESC`)
	metrics.ObserveQuery("select", "training_runs", start, err)
	if err != nil {
		return nil, fmt.Errorf("store: list training runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows cleanup

	var out []TrainingRun
	for rows.Next() {
		var (
			run            TrainingRun
			handle         sql.NullString
			metricsJSON    sql.NullString
			importanceJSON sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Kind, &handle, &run.Metrics.Primary, &run.Metrics.Score,
			&metricsJSON, &importanceJSON, &run.TrainedAt); err != nil {
			return nil, fmt.Errorf("store: scan training run: %w", err)
		}
		run.ModelHandle = handle.String
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &run.Metrics.All); err != nil {
				return nil, fmt.Errorf("store: decode run metrics: %w", err)
			}
		}
		if importanceJSON.Valid && importanceJSON.String != "" {
			if err := json.Unmarshal([]byte(importanceJSON.String), &run.Importance); err != nil {
				return nil, fmt.Errorf("store: decode run importance: %w", err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate training runs: %w", err)
	}
	return out, nil
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DB exposes the underlying connection for components that share the
// artifact database, such as the audit trail.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
