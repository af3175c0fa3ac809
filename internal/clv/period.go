// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package clv

import (
	"fmt"
	"time"

	"github.com/tomtom215/monetarius/internal/config"
)

const dateLayout = "2006-01-02"

// Bucketing maps timestamps to period indexes using an ordered list of
// boundary dates. N boundaries define N+1 periods numbered from 1.
//
// A timestamp whose date equals a boundary falls into the later period:
// boundaries are exclusive on the lower side, inclusive upward.
type Bucketing struct {
	boundaries []time.Time

	// referenceEnds maps period (1-based, index period-1) to the calendar
	// day used as the Recency reference for that period. Empty when
	// reference dates are derived from the data instead.
	referenceEnds []time.Time

	derive bool
}

// NewBucketing builds a Bucketing from the CLV configuration. The
// configuration is assumed validated (parseable, ascending boundaries and
// one reference date per period unless deriving).
func NewBucketing(cfg config.CLVConfig) (*Bucketing, error) {
	b := &Bucketing{derive: cfg.DeriveReferenceDates}

	for i, s := range cfg.PeriodBoundaries {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("clv: period boundary %d: %w", i, err)
		}
		b.boundaries = append(b.boundaries, d)
	}

	if !cfg.DeriveReferenceDates {
		if len(cfg.ReferenceEndDates) != len(b.boundaries)+1 {
			return nil, fmt.Errorf("clv: need %d reference end dates, got %d",
				len(b.boundaries)+1, len(cfg.ReferenceEndDates))
		}
		for i, s := range cfg.ReferenceEndDates {
			d, err := time.Parse(dateLayout, s)
			if err != nil {
				return nil, fmt.Errorf("clv: reference end date %d: %w", i, err)
			}
			b.referenceEnds = append(b.referenceEnds, d)
		}
	}

	return b, nil
}

// Periods returns the number of periods the bucketing defines.
func (b *Bucketing) Periods() int {
	return len(b.boundaries) + 1
}

// PeriodOf returns the 1-based period index for ts. Only the date portion
// participates in the comparison.
func (b *Bucketing) PeriodOf(ts time.Time) int {
	d := dateOf(ts)
	period := 1
	for _, boundary := range b.boundaries {
		if d.Before(boundary) {
			break
		}
		period++
	}
	return period
}

// DerivesReferenceDates reports whether reference end dates come from the
// observed data rather than configuration.
func (b *Bucketing) DerivesReferenceDates() bool {
	return b.derive
}

// ReferenceEnd returns the configured Recency reference date for period.
// Must not be called in derive mode.
func (b *Bucketing) ReferenceEnd(period int) (time.Time, error) {
	if b.derive {
		return time.Time{}, fmt.Errorf("clv: reference end dates are derived from data")
	}
	if period < 1 || period > len(b.referenceEnds) {
		return time.Time{}, fmt.Errorf("clv: no reference end date for period %d", period)
	}
	return b.referenceEnds[period-1], nil
}

// dateOf truncates a timestamp to its calendar date in UTC.
func dateOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
