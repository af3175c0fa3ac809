// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package clv implements the customer-lifetime-value feature pipeline:
// outlier filtering, period assignment, RFM aggregation, and forward-label
// joining. All transforms are pure functions over in-memory slices; the
// pipeline is deterministic and idempotent.
package clv

import (
	"github.com/tomtom215/monetarius/internal/metrics"
	"github.com/tomtom215/monetarius/internal/models"
)

// FilterStats records how many rows the outlier filter excluded per cause.
type FilterStats struct {
	NonPositive int64 `json:"non_positive"`
	Outlier     int64 `json:"outlier"`
}

// FilterOutliers drops returns (quantity or price <= 0) and statistically
// extreme rows (quantity or price at or above the fixed ceiling).
//
// The ceilings are configuration constants chosen from prior inspection of
// the distribution, never computed adaptively. The function is total: rows
// are filtered, not validated, and it never fails.
func FilterOutliers(txs []models.Transaction, maxQuantity, maxUnitPrice float64) ([]models.Transaction, FilterStats) {
	var stats FilterStats
	out := make([]models.Transaction, 0, len(txs))

	for _, tx := range txs {
		switch {
		case tx.Quantity <= 0 || tx.UnitPrice <= 0:
			stats.NonPositive++
			metrics.RowsDropped.WithLabelValues("transactions", "non_positive").Inc()
		case tx.Quantity >= maxQuantity || tx.UnitPrice >= maxUnitPrice:
			stats.Outlier++
			metrics.RowsDropped.WithLabelValues("transactions", "outlier").Inc()
		default:
			out = append(out, tx)
		}
	}
	return out, stats
}
