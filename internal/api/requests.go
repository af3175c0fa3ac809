// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// validate is the shared request validator.
var validate = validator.New(validator.WithRequiredStructEnabled())

// runRequest starts a pipeline run against an input file.
type runRequest struct {
	// Path is the input CSV. Empty falls back to the configured path.
	Path string `json:"path" validate:"omitempty,filepath"`
}

// trainRequest starts a training run.
type trainRequest struct {
	// Trainer selects the training backend.
	Trainer string `json:"trainer" validate:"required,oneof=automl svd"`

	// Blocking waits for the model inside the request instead of
	// returning a job id.
	Blocking bool `json:"blocking"`
}

// decodeJSON decodes and validates a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %q: failed %q constraint", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}
