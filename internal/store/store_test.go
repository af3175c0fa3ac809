// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/models"
	"github.com/tomtom215/monetarius/internal/training"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.DatabaseConfig{Path: ":memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestLabeledRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rows := []models.LabeledRow{
		{CustomerID: 1, Period: 1, Recency: 91, Frequency: 2, Monetary: 10, MonetaryNext: 20},
		{CustomerID: 2, Period: 1, Recency: 30, Frequency: 5, Monetary: 120, MonetaryNext: 80},
	}
	if err := s.ReplaceLabeled(ctx, rows); err != nil {
		t.Fatalf("ReplaceLabeled() error = %v", err)
	}

	got, err := s.LoadLabeled(ctx)
	if err != nil {
		t.Fatalf("LoadLabeled() error = %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("LoadLabeled() = %+v, want %+v", got, rows)
	}
}

func TestReplaceLabeledOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []models.LabeledRow{
		{CustomerID: 1, Period: 1, Recency: 10, Frequency: 1, Monetary: 5, MonetaryNext: 6},
		{CustomerID: 2, Period: 1, Recency: 20, Frequency: 2, Monetary: 15, MonetaryNext: 16},
	}
	if err := s.ReplaceLabeled(ctx, first); err != nil {
		t.Fatalf("ReplaceLabeled() error = %v", err)
	}

	second := []models.LabeledRow{
		{CustomerID: 3, Period: 2, Recency: 7, Frequency: 3, Monetary: 99, MonetaryNext: 100},
	}
	if err := s.ReplaceLabeled(ctx, second); err != nil {
		t.Fatalf("ReplaceLabeled() error = %v", err)
	}

	got, err := s.LoadLabeled(ctx)
	if err != nil {
		t.Fatalf("LoadLabeled() error = %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Errorf("LoadLabeled() after replace = %+v, want %+v", got, second)
	}
}

func TestRatingsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rows := []models.RatingRow{
		{ItemID: 100, UserID: 1, RawScore: 80, Rating: 10},
		{ItemID: 200, UserID: 2, RawScore: 15, Rating: 1.875},
	}
	if err := s.ReplaceRatings(ctx, rows); err != nil {
		t.Fatalf("ReplaceRatings() error = %v", err)
	}

	got, err := s.LoadRatings(ctx)
	if err != nil {
		t.Fatalf("LoadRatings() error = %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("LoadRatings() = %+v, want %+v", got, rows)
	}
}

func TestEmptyTables(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	labeled, err := s.LoadLabeled(ctx)
	if err != nil {
		t.Fatalf("LoadLabeled() error = %v", err)
	}
	if len(labeled) != 0 {
		t.Errorf("LoadLabeled() on empty store returned %d rows", len(labeled))
	}

	runs, err := s.ListTrainingRuns(ctx)
	if err != nil {
		t.Fatalf("ListTrainingRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("ListTrainingRuns() on empty store returned %d runs", len(runs))
	}
}

func TestTrainingRunsNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	older := &TrainingRun{
		ID:          "run-1",
		Kind:        "automl",
		ModelHandle: "model-1",
		Metrics: training.Metrics{
			Primary: "normalized_root_mean_squared_error",
			Score:   0.21,
			All:     map[string]float64{"normalized_root_mean_squared_error": 0.21, "r2_score": 0.7},
		},
		Importance: []training.FeatureImportance{{Feature: "monetary", Importance: 0.6}},
		TrainedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := &TrainingRun{
		ID:   "run-2",
		Kind: "svd",
		Metrics: training.Metrics{
			Primary: "normalized_rmse",
			Score:   0.12,
		},
		TrainedAt: time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := s.SaveTrainingRun(ctx, older); err != nil {
		t.Fatalf("SaveTrainingRun() error = %v", err)
	}
	if err := s.SaveTrainingRun(ctx, newer); err != nil {
		t.Fatalf("SaveTrainingRun() error = %v", err)
	}

	runs, err := s.ListTrainingRuns(ctx)
	if err != nil {
		t.Fatalf("ListTrainingRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListTrainingRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("runs ordered %q, %q; want newest first", runs[0].ID, runs[1].ID)
	}
	if runs[1].Metrics.All["r2_score"] != 0.7 {
		t.Errorf("metrics blob not restored: %+v", runs[1].Metrics.All)
	}
	if len(runs[1].Importance) != 1 || runs[1].Importance[0].Feature != "monetary" {
		t.Errorf("importance blob not restored: %+v", runs[1].Importance)
	}
}
