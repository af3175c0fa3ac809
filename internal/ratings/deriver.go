// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package ratings derives implicit preference ratings from behavioral
// signals (views, cart-adds, purchases) in a user-item event log.
//
// Derivation is an explicit two-pass computation: first accumulate each
// pair's weighted raw score, then normalize every score by the dataset-wide
// maximum. The maximum must be known before any rating is finalized, so no
// row is emitted until the full log has been scored.
package ratings

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/monetarius/internal/metrics"
	"github.com/tomtom215/monetarius/internal/models"
)

// ErrNoRatings indicates no (item, user) pair accumulated a positive raw
// score, leaving the normalizer without a maximum.
var ErrNoRatings = errors.New("ratings: no weighted actions in event log")

// pairKey identifies one (item, user) rating.
type pairKey struct {
	itemID int64
	userID int64
}

// Deriver computes implicit ratings from an action log.
type Deriver struct {
	weights map[string]float64
	scale   float64
}

// NewDeriver creates a Deriver with the given action-weight table and
// rating scale. Actions absent from the table carry no signal and are
// ignored (with an audit counter), not treated as errors.
func NewDeriver(weights map[string]float64, scale float64) (*Deriver, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("ratings: empty action-weight table")
	}
	if scale <= 0 {
		return nil, fmt.Errorf("ratings: scale must be positive, got %g", scale)
	}
	return &Deriver{weights: weights, scale: scale}, nil
}

// Derive computes one rating per (item, user) pair with at least one
// weighted action. Pass one accumulates raw scores and the global maximum;
// pass two normalizes to [0, scale]. The pair holding the maximum raw
// score rates exactly scale.
//
// An event log that yields no weighted actions fails fast with ErrNoRatings
// rather than dividing by zero.
func (d *Deriver) Derive(events []models.ActionEvent) ([]models.RatingRow, error) {
	if len(events) == 0 {
		return nil, ErrNoRatings
	}

	// Pass one: weighted score accumulation.
	raw := make(map[pairKey]float64)
	var maxScore float64
	for _, ev := range events {
		w, ok := d.weights[ev.Action]
		if !ok {
			metrics.RowsDropped.WithLabelValues("actions", "unweighted_action").Inc()
			continue
		}
		key := pairKey{itemID: ev.ItemID, userID: ev.UserID}
		raw[key] += w
		if raw[key] > maxScore {
			maxScore = raw[key]
		}
	}

	if maxScore <= 0 {
		return nil, ErrNoRatings
	}

	// Pass two: min-max normalization against the global maximum.
	out := make([]models.RatingRow, 0, len(raw))
	for key, score := range raw {
		out = append(out, models.RatingRow{
			ItemID:   key.itemID,
			UserID:   key.userID,
			RawScore: score,
			Rating:   d.scale * score / maxScore,
		})
	}

	// Deterministic output order for byte-identical reruns.
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].UserID < out[j].UserID
	})

	return out, nil
}
