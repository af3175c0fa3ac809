// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package clv

import (
	"fmt"

	"github.com/tomtom215/monetarius/internal/models"
)

// JoinLabels attaches each (customer, period) aggregate's next-period
// Monetary value as its prediction target.
//
// The join is an aggregate-then-lookup over an index keyed by
// (customer, period) rather than a relational self-join, keeping it linear
// and immune to accidental cross-products. Duplicate (customer, period)
// rows in the input are rejected: the aggregator cannot produce them, so a
// duplicate means the caller fed unaggregated data.
//
// Aggregates with no matching next-period row are dropped; customers with
// data in only one period contribute zero rows. Every emitted row carries
// a complete label.
func JoinLabels(rows []models.RFMRow) ([]models.LabeledRow, error) {
	index := make(map[groupKey]float64, len(rows))
	for _, row := range rows {
		key := groupKey{customerID: row.CustomerID, period: row.Period}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("clv: duplicate aggregate for customer %d period %d", row.CustomerID, row.Period)
		}
		index[key] = row.Monetary
	}

	// Input ordering is preserved, so output inherits the aggregator's
	// (customer, period) sort and reruns stay byte-identical.
	out := make([]models.LabeledRow, 0, len(rows))
	for _, row := range rows {
		next, ok := index[groupKey{customerID: row.CustomerID, period: row.NextPeriod}]
		if !ok {
			continue
		}
		out = append(out, models.LabeledRow{
			CustomerID:   row.CustomerID,
			Period:       row.Period,
			Recency:      row.Recency,
			Frequency:    row.Frequency,
			Monetary:     row.Monetary,
			MonetaryNext: next,
		})
	}

	return out, nil
}
