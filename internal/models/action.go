// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package models

import "time"

// ActionEvent is a behavioral signal from the user-item event log.
type ActionEvent struct {
	ItemID int64 `json:"item_id"`
	UserID int64 `json:"user_id"`

	// Action is the event type: view, cart, purchase. The recognized set
	// is defined by the configured action-weight table, not hard-coded.
	Action string `json:"action"`

	// Timestamp is optional; the rating derivation ignores it.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RatingRow is an implicit rating derived from weighted action counts and
// min-max normalized to a fixed scale. Exactly one row exists per
// (item, user) pair with at least one recorded action.
type RatingRow struct {
	ItemID int64 `json:"item_id"`
	UserID int64 `json:"user_id"`

	// RawScore is sum(action_count[a] * weight[a]) over action types.
	RawScore float64 `json:"raw_score"`

	// Rating is RawScore normalized to [0, scale] by the dataset-wide
	// maximum raw score.
	Rating float64 `json:"rating"`
}
