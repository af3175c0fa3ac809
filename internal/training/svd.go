// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zhenghaoz/gorse/base"
	"github.com/zhenghaoz/gorse/core"
	"github.com/zhenghaoz/gorse/model"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/models"
)

// SVDTrainer fits an SVD matrix-factorization recommender on the derived
// ratings table using the gorse library. Model quality is estimated with
// k-fold cross validation before the final fit on the full table.
//
// Training is in-process but can run minutes on large tables, so it goes
// through the same job manager as remote training.
type SVDTrainer struct {
	cfg    config.SVDConfig
	scale  float64
	logger zerolog.Logger
}

// NewSVDTrainer creates an SVD trainer. scale is the upper bound of the
// rating range, used to normalize RMSE.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSVDTrainer(cfg config.SVDConfig, scale float64, logger zerolog.Logger) *SVDTrainer {
	return &SVDTrainer{
		cfg:    cfg,
		scale:  scale,
		logger: logger.With().Str("component", "svd").Logger(),
	}
}

// params maps the configuration onto gorse hyperparameters.
func (t *SVDTrainer) params() base.Params {
	return base.Params{
		base.NFactors: t.cfg.Factors,
		base.NEpochs:  t.cfg.Epochs,
		base.Lr:       t.cfg.LearningRate,
		base.Reg:      t.cfg.Reg,
	}
}

// Train implements RatingsTrainer.
func (t *SVDTrainer) Train(ctx context.Context, rows []models.RatingRow) (*RatingsResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, cleanup, err := t.stageDataset(rows)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	t.logger.Info().
		Int("ratings", len(rows)).
		Int("folds", t.cfg.Folds).
		Int("factors", t.cfg.Factors).
		Msg("cross validating SVD")

	opts := &base.RuntimeOptions{Verbose: false, FitJobs: runtime.NumCPU()}
	cv := core.CrossValidate(model.NewSVD(t.params()), data,
		core.NewKFoldSplitter(t.cfg.Folds), 0, opts,
		core.NewRatingEvaluator(core.RMSE))

	rmse := mean(cv[0].TestScore)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Final fit on the full table.
	svd := model.NewSVD(t.params())
	svd.Fit(data, nil)

	t.logger.Info().
		Float64("rmse", rmse).
		Float64("normalized_rmse", rmse/t.scale).
		Msg("SVD training finished")

	return &RatingsResult{
		Model: &svdModel{svd: svd},
		Metrics: Metrics{
			Primary: "normalized_rmse",
			Score:   rmse / t.scale,
			All:     map[string]float64{"rmse": rmse, "normalized_rmse": rmse / t.scale},
		},
		Trained: time.Now().UTC(),
	}, nil
}

// TrainJob adapts Train to the job manager.
func (t *SVDTrainer) TrainJob(rows []models.RatingRow) JobFunc {
	return func(ctx context.Context, _ func(string)) (any, error) {
		return t.Train(ctx, rows)
	}
}

// stageDataset writes the ratings to a temporary long-format CSV
// (user, item, rating) and loads it through gorse's CSV loader, the
// trainer's expected input schema. The cleanup function removes the
// staging file.
func (t *SVDTrainer) stageDataset(rows []models.RatingRow) (core.DataSetInterface, func(), error) {
	dir, err := os.MkdirTemp("", "monetarius-ratings-")
	if err != nil {
		return nil, nil, fmt.Errorf("training: stage ratings: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) } //nolint:errcheck // temp dir

	path := filepath.Join(dir, "ratings.csv")
	f, err := os.Create(path) //nolint:gosec // path under our own temp dir
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("training: stage ratings: %w", err)
	}

	w := csv.NewWriter(f)
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.UserID, 10),
			strconv.FormatInt(r.ItemID, 10),
			strconv.FormatFloat(r.Rating, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			f.Close() //nolint:errcheck,gosec // already failing
			cleanup()
			return nil, nil, fmt.Errorf("training: stage ratings: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		cleanup()
		return nil, nil, fmt.Errorf("training: stage ratings: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("training: stage ratings: %w", err)
	}

	return core.LoadDataFromCSV(path, ",", false), cleanup, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// svdModel adapts a fitted gorse SVD to the Model interface. The feature
// map carries the user and item ids under "user_id" and "item_id".
type svdModel struct {
	svd *model.SVD
}

// Predict implements Model.
func (m *svdModel) Predict(_ context.Context, features map[string]float64) (float64, error) {
	userID, ok := features["user_id"]
	if !ok {
		return 0, fmt.Errorf("training: predict requires user_id feature")
	}
	itemID, ok := features["item_id"]
	if !ok {
		return 0, fmt.Errorf("training: predict requires item_id feature")
	}
	user := strconv.FormatInt(int64(userID), 10)
	item := strconv.FormatInt(int64(itemID), 10)
	return m.svd.Predict(user, item), nil
}
