// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package clv

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/models"
)

func twoPeriodBucketing(t *testing.T) *Bucketing {
	t.Helper()
	return mustBucketing(t, config.CLVConfig{
		PeriodBoundaries:  []string{"2011-06-01"},
		ReferenceEndDates: []string{"2011-05-31", "2011-12-09"},
	})
}

func TestAggregateBasics(t *testing.T) {
	input := []models.Transaction{
		tx(1, "inv1", "2011-03-01", 2, 5),  // period 1, amount 10
		tx(1, "inv1", "2011-03-01", 1, 4),  // same invoice, amount 4
		tx(1, "inv2", "2011-04-10", 3, 2),  // period 1, amount 6
		tx(1, "inv3", "2011-07-10", 1, 20), // period 2, amount 20
		tx(2, "inv4", "2011-02-15", 5, 1),  // period 1, amount 5
	}

	rows, err := Aggregate(input, twoPeriodBucketing(t))
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	// Sorted by (customer, period)
	c1p1 := rows[0]
	if c1p1.CustomerID != 1 || c1p1.Period != 1 {
		t.Fatalf("unexpected first row: %+v", c1p1)
	}
	if c1p1.Monetary != 20 {
		t.Errorf("Monetary = %g, want 20", c1p1.Monetary)
	}
	if c1p1.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2 distinct invoices", c1p1.Frequency)
	}
	// Last event 2011-04-10, reference end 2011-05-31 -> 51 days
	if c1p1.Recency != 51 {
		t.Errorf("Recency = %d, want 51", c1p1.Recency)
	}
	if c1p1.NextPeriod != 2 {
		t.Errorf("NextPeriod = %d, want 2", c1p1.NextPeriod)
	}

	c1p2 := rows[1]
	if c1p2.Period != 2 || c1p2.Monetary != 20 || c1p2.Frequency != 1 {
		t.Errorf("unexpected period-2 row: %+v", c1p2)
	}
	// Last event 2011-07-10, reference end 2011-12-09 -> 152 days
	if c1p2.Recency != 152 {
		t.Errorf("Recency = %d, want 152", c1p2.Recency)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	input := []models.Transaction{
		tx(3, "x", "2011-01-05", 2, 2),
		tx(1, "y", "2011-07-02", 1, 3),
		tx(2, "z", "2011-02-01", 4, 1),
		tx(1, "w", "2011-03-03", 2, 2),
	}

	b := twoPeriodBucketing(t)
	first, err := Aggregate(input, b)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Aggregate(input, b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated aggregation of identical input diverged")
	}
}

func TestAggregateDerivedReferenceDates(t *testing.T) {
	b := mustBucketing(t, config.CLVConfig{
		PeriodBoundaries:     []string{"2011-06-01"},
		DeriveReferenceDates: true,
	})

	input := []models.Transaction{
		tx(1, "a", "2011-03-01", 2, 5),
		tx(2, "b", "2011-04-15", 1, 3), // latest event in period 1
	}

	rows, err := Aggregate(input, b)
	if err != nil {
		t.Fatal(err)
	}
	// Customer 1: last event 2011-03-01, derived end 2011-04-15 -> 45 days
	if rows[0].Recency != 45 {
		t.Errorf("Recency = %d, want 45", rows[0].Recency)
	}
	// Customer 2 holds the window maximum -> recency 0
	if rows[1].Recency != 0 {
		t.Errorf("Recency = %d, want 0", rows[1].Recency)
	}
}

func TestAggregateNegativeRecencyFailsFast(t *testing.T) {
	b := mustBucketing(t, config.CLVConfig{
		PeriodBoundaries:  []string{"2011-06-01"},
		ReferenceEndDates: []string{"2011-01-31", "2011-12-09"}, // predates data
	})

	_, err := Aggregate([]models.Transaction{tx(1, "a", "2011-03-01", 2, 5)}, b)
	if err == nil || !strings.Contains(err.Error(), "negative recency") {
		t.Fatalf("expected negative recency error, got %v", err)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if _, err := Aggregate(nil, twoPeriodBucketing(t)); err == nil {
		t.Fatal("expected error for empty input")
	}
}
