// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package clv

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/monetarius/internal/models"
)

// groupKey identifies one (customer, period) aggregate.
type groupKey struct {
	customerID int64
	period     int
}

// rfmAccum accumulates one group during the aggregation pass.
type rfmAccum struct {
	monetary float64
	invoices map[string]struct{}
	lastSeen time.Time
}

// Aggregate groups filtered, period-assigned transactions by
// (customer, period) and computes the RFM features:
//
//	Monetary  = sum of quantity*unit_price over the group
//	Frequency = count of distinct invoice ids in the group
//	Recency   = days from the group's last event date to the period's
//	            reference end date
//
// Aggregation is map-keyed, so duplicate (customer, period) rows cannot
// occur in the output. Output rows are sorted by (customer, period) for
// deterministic, byte-identical reruns.
//
// A negative Recency means a configured reference end date predates the
// observed data in that period; that is a configuration fault and fails
// fast rather than emitting a nonsensical aggregate.
func Aggregate(txs []models.Transaction, bucketing *Bucketing) ([]models.RFMRow, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("clv: no transactions to aggregate")
	}

	groups := make(map[groupKey]*rfmAccum)
	// In derive mode the reference end date of a period is the maximum
	// observed event date in that period.
	derivedEnds := make(map[int]time.Time)

	for _, tx := range txs {
		period := bucketing.PeriodOf(tx.Timestamp)
		key := groupKey{customerID: tx.CustomerID, period: period}

		acc, ok := groups[key]
		if !ok {
			acc = &rfmAccum{invoices: make(map[string]struct{})}
			groups[key] = acc
		}
		acc.monetary += tx.Amount()
		acc.invoices[tx.InvoiceID] = struct{}{}
		if tx.Timestamp.After(acc.lastSeen) {
			acc.lastSeen = tx.Timestamp
		}

		if d := dateOf(tx.Timestamp); d.After(derivedEnds[period]) {
			derivedEnds[period] = d
		}
	}

	rows := make([]models.RFMRow, 0, len(groups))
	for key, acc := range groups {
		refEnd, err := referenceEndFor(bucketing, derivedEnds, key.period)
		if err != nil {
			return nil, err
		}

		recency := int(refEnd.Sub(dateOf(acc.lastSeen)).Hours() / 24)
		if recency < 0 {
			return nil, fmt.Errorf("clv: negative recency for customer %d period %d: reference end %s predates last event %s",
				key.customerID, key.period, refEnd.Format(dateLayout), dateOf(acc.lastSeen).Format(dateLayout))
		}

		rows = append(rows, models.RFMRow{
			CustomerID: key.customerID,
			Period:     key.period,
			NextPeriod: key.period + 1,
			Recency:    recency,
			Frequency:  len(acc.invoices),
			Monetary:   acc.monetary,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CustomerID != rows[j].CustomerID {
			return rows[i].CustomerID < rows[j].CustomerID
		}
		return rows[i].Period < rows[j].Period
	})

	return rows, nil
}

// referenceEndFor resolves the Recency reference date for a period, either
// from configuration or from the observed data window.
func referenceEndFor(bucketing *Bucketing, derivedEnds map[int]time.Time, period int) (time.Time, error) {
	if bucketing.DerivesReferenceDates() {
		end, ok := derivedEnds[period]
		if !ok {
			return time.Time{}, fmt.Errorf("clv: no observed events in period %d", period)
		}
		return end, nil
	}
	return bucketing.ReferenceEnd(period)
}
