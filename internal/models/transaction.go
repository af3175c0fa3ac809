// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package models defines the flat tabular records flowing through the
// Monetarius pipelines. All records are derived, read-only values
// recomputed from scratch on each run.
package models

import "time"

// Transaction is a single line item from the raw transaction log.
type Transaction struct {
	// CustomerID identifies the purchasing entity. Rows without one are
	// excluded at load time.
	CustomerID int64 `json:"customer_id"`

	// InvoiceID groups line items into purchases. Frequency counts
	// distinct invoices.
	InvoiceID string `json:"invoice_id"`

	// Timestamp is when the transaction occurred.
	Timestamp time.Time `json:"timestamp"`

	// Quantity is the number of units purchased. Positive after filtering.
	Quantity float64 `json:"quantity"`

	// UnitPrice is the per-unit price. Positive after filtering.
	UnitPrice float64 `json:"unit_price"`
}

// Amount is the monetary value of the line item.
func (t Transaction) Amount() float64 {
	return t.Quantity * t.UnitPrice
}

// RFMRow is the per-(customer, period) aggregate.
// Invariants: NextPeriod = Period + 1, Frequency >= 1, Monetary > 0.
type RFMRow struct {
	CustomerID int64 `json:"customer_id"`
	Period     int   `json:"period"`
	NextPeriod int   `json:"next_period"`

	// Recency is the day count from the customer's last event in the
	// period to the period's reference end date. Non-negative.
	Recency int `json:"recency"`

	// Frequency is the count of distinct invoices in the period.
	Frequency int `json:"frequency"`

	// Monetary is the sum of line-item amounts in the period.
	Monetary float64 `json:"monetary"`
}

// LabeledRow is a supervised training example: the RFM features of one
// period paired with the next period's Monetary value as label.
// Every LabeledRow has a complete label; unlabeled aggregates are dropped.
type LabeledRow struct {
	CustomerID   int64   `json:"customer_id"`
	Period       int     `json:"period"`
	Recency      int     `json:"recency"`
	Frequency    int     `json:"frequency"`
	Monetary     float64 `json:"monetary"`
	MonetaryNext float64 `json:"monetary_next"`
}
