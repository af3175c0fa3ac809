// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package config

import (
	"fmt"
	"time"
)

// dateLayout is the calendar-date layout used for boundaries and reference dates.
const dateLayout = "2006-01-02"

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateCLV(); err != nil {
		return err
	}
	if err := c.validateRatings(); err != nil {
		return err
	}
	return c.validateTraining()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

// supportedEncodings lists the source encodings the loader can decode.
var supportedEncodings = map[string]bool{
	"utf-8":        true,
	"utf8":         true,
	"windows-1252": true,
	"iso-8859-1":   true,
	"iso-8859-9":   true,
}

func (c *Config) validateIngest() error {
	if !supportedEncodings[c.Ingest.Encoding] {
		return fmt.Errorf("INGEST_ENCODING %q is not supported", c.Ingest.Encoding)
	}
	if c.Ingest.DateFormat == "" {
		return fmt.Errorf("INGEST_DATE_FORMAT is required")
	}
	if len(c.Ingest.Comma) != 1 {
		return fmt.Errorf("INGEST_COMMA must be a single character, got %q", c.Ingest.Comma)
	}
	return nil
}

func (c *Config) validateCLV() error {
	if len(c.CLV.PeriodBoundaries) == 0 {
		return fmt.Errorf("CLV_PERIOD_BOUNDARIES requires at least one boundary date")
	}

	var prev time.Time
	for i, b := range c.CLV.PeriodBoundaries {
		d, err := time.Parse(dateLayout, b)
		if err != nil {
			return fmt.Errorf("CLV_PERIOD_BOUNDARIES[%d]: invalid date %q: %w", i, b, err)
		}
		if i > 0 && !d.After(prev) {
			return fmt.Errorf("CLV_PERIOD_BOUNDARIES must be strictly ascending, %q follows %q", b, c.CLV.PeriodBoundaries[i-1])
		}
		prev = d
	}

	if !c.CLV.DeriveReferenceDates {
		want := len(c.CLV.PeriodBoundaries) + 1
		if len(c.CLV.ReferenceEndDates) != want {
			return fmt.Errorf("CLV_REFERENCE_END_DATES must list %d dates (one per period), got %d", want, len(c.CLV.ReferenceEndDates))
		}
		for i, r := range c.CLV.ReferenceEndDates {
			if _, err := time.Parse(dateLayout, r); err != nil {
				return fmt.Errorf("CLV_REFERENCE_END_DATES[%d]: invalid date %q: %w", i, r, err)
			}
		}
	}

	if c.CLV.MaxQuantity <= 0 {
		return fmt.Errorf("CLV_MAX_QUANTITY must be positive, got %g", c.CLV.MaxQuantity)
	}
	if c.CLV.MaxUnitPrice <= 0 {
		return fmt.Errorf("CLV_MAX_UNIT_PRICE must be positive, got %g", c.CLV.MaxUnitPrice)
	}
	return nil
}

func (c *Config) validateRatings() error {
	if len(c.Ratings.ActionWeights) == 0 {
		return fmt.Errorf("RATINGS_ACTION_WEIGHTS requires at least one action type")
	}
	for action, w := range c.Ratings.ActionWeights {
		if w <= 0 {
			return fmt.Errorf("RATINGS_ACTION_WEIGHTS[%s] must be positive, got %g", action, w)
		}
	}
	if c.Ratings.Scale <= 0 {
		return fmt.Errorf("RATINGS_SCALE must be positive, got %g", c.Ratings.Scale)
	}
	return nil
}

func (c *Config) validateTraining() error {
	a := c.Training.AutoML
	if a.Iterations <= 0 {
		return fmt.Errorf("AUTOML_ITERATIONS must be positive, got %d", a.Iterations)
	}
	if a.CrossValidations < 2 {
		return fmt.Errorf("AUTOML_CROSS_VALIDATIONS must be at least 2, got %d", a.CrossValidations)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("AUTOML_POLL_INTERVAL must be positive, got %s", a.PollInterval)
	}

	s := c.Training.SVD
	if s.Factors <= 0 {
		return fmt.Errorf("SVD_FACTORS must be positive, got %d", s.Factors)
	}
	if s.Epochs <= 0 {
		return fmt.Errorf("SVD_EPOCHS must be positive, got %d", s.Epochs)
	}
	if s.Folds < 2 {
		return fmt.Errorf("SVD_FOLDS must be at least 2, got %d", s.Folds)
	}
	return nil
}
