// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/models"
)

// AutoMLClient talks to the remote AutoML regression service.
//
// The service owns the training algorithm, hyperparameter search, and
// per-iteration timeouts; this client only stages the labeled feature
// table, submits a job, polls its status, and fetches the best model. All
// remote calls pass through a circuit breaker; once the breaker opens,
// calls fail fast with ErrRemote until the service recovers. The client
// never retries a failed remote job.
type AutoMLClient struct {
	cfg        config.AutoMLConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewAutoMLClient creates a client for the configured AutoML endpoint.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAutoMLClient(cfg config.AutoMLConfig, logger zerolog.Logger) *AutoMLClient {
	settings := gobreaker.Settings{
		Name:    "automl",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	return &AutoMLClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		limiter:    rate.NewLimiter(rate.Every(pollInterval), 1),
		logger:     logger.With().Str("component", "automl").Logger(),
	}
}

// trainingRow is the wire schema for one labeled example: flat numeric
// feature columns plus the target.
type trainingRow struct {
	Recency      int     `json:"recency"`
	Frequency    int     `json:"frequency"`
	Monetary     float64 `json:"monetary"`
	MonetaryNext float64 `json:"monetary_next"`
}

// submitRequest is the job submission payload.
type submitRequest struct {
	Task             string        `json:"task"` // always "regression"
	LabelColumn      string        `json:"label_column"`
	PrimaryMetric    string        `json:"primary_metric"`
	Iterations       int           `json:"iterations"`
	IterationTimeout string        `json:"iteration_timeout"`
	CrossValidations int           `json:"cross_validations"`
	Rows             []trainingRow `json:"rows"`
}

// jobStatusResponse is the service's status document.
type jobStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued, running, completed, failed, cancelled
	Error  string `json:"error,omitempty"`
}

// modelResponse is the best-model document returned on completion.
type modelResponse struct {
	ModelID    string              `json:"model_id"`
	Metrics    map[string]float64  `json:"metrics"`
	Importance []FeatureImportance `json:"feature_importance"`
}

// Train submits the labeled table and blocks until the remote job reaches
// a terminal state. Cancelling ctx sends a cancel request for the remote
// job and returns ErrCancelled.
func (c *AutoMLClient) Train(ctx context.Context, rows []models.LabeledRow) (*RegressionResult, error) {
	return c.train(ctx, rows, nil)
}

// TrainJob adapts Train to the job manager, reporting the remote job id
// as soon as submission succeeds.
func (c *AutoMLClient) TrainJob(rows []models.LabeledRow) JobFunc {
	return func(ctx context.Context, reportRemoteID func(string)) (any, error) {
		return c.train(ctx, rows, reportRemoteID)
	}
}

func (c *AutoMLClient) train(ctx context.Context, rows []models.LabeledRow, reportRemoteID func(string)) (*RegressionResult, error) {
	remoteID, err := c.Submit(ctx, rows)
	if err != nil {
		return nil, err
	}
	if reportRemoteID != nil {
		reportRemoteID(remoteID)
	}

	c.logger.Info().Str("remote_id", remoteID).Int("rows", len(rows)).Msg("training job submitted")

	if err := c.waitForCompletion(ctx, remoteID); err != nil {
		return nil, err
	}
	return c.fetchModel(ctx, remoteID)
}

// Submit stages the dataset and creates a remote training job, returning
// the service's job id. Used directly for non-blocking submitted mode.
func (c *AutoMLClient) Submit(ctx context.Context, rows []models.LabeledRow) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyDataset
	}

	payload := submitRequest{
		Task:             "regression",
		LabelColumn:      "monetary_next",
		PrimaryMetric:    c.cfg.PrimaryMetric,
		Iterations:       c.cfg.Iterations,
		IterationTimeout: c.cfg.IterationTimeout.String(),
		CrossValidations: c.cfg.CrossValidations,
		Rows:             make([]trainingRow, 0, len(rows)),
	}
	for _, r := range rows {
		payload.Rows = append(payload.Rows, trainingRow{
			Recency:      r.Recency,
			Frequency:    r.Frequency,
			Monetary:     r.Monetary,
			MonetaryNext: r.MonetaryNext,
		})
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/jobs", payload)
	if err != nil {
		return "", err
	}

	var status jobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", ErrRemote, err)
	}
	if status.ID == "" {
		return "", fmt.Errorf("%w: submit response missing job id", ErrRemote)
	}
	return status.ID, nil
}

// Status polls the remote job once.
func (c *AutoMLClient) Status(ctx context.Context, remoteID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+remoteID, nil)
	if err != nil {
		return "", err
	}
	var status jobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("%w: decode status response: %v", ErrRemote, err)
	}
	if status.Status == "failed" {
		return status.Status, fmt.Errorf("%w: remote job failed: %s", ErrRemote, status.Error)
	}
	return status.Status, nil
}

// CancelRemote asks the service to stop a running job.
func (c *AutoMLClient) CancelRemote(ctx context.Context, remoteID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/jobs/"+remoteID, nil)
	return err
}

// waitForCompletion polls until the remote job is terminal, pacing polls
// with the configured interval. On ctx cancellation it requests the
// remote job stop (best effort, with a short fresh context) and returns
// ErrCancelled.
func (c *AutoMLClient) waitForCompletion(ctx context.Context, remoteID string) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.cancelAndReport(remoteID)
		}

		status, err := c.Status(ctx, remoteID)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelAndReport(remoteID)
			}
			return err
		}

		switch status {
		case "completed":
			return nil
		case "cancelled":
			return ErrCancelled
		default:
			c.logger.Debug().Str("remote_id", remoteID).Str("status", status).Msg("remote job in progress")
		}
	}
}

func (c *AutoMLClient) cancelAndReport(remoteID string) error {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.CancelRemote(cancelCtx, remoteID); err != nil {
		c.logger.Warn().Err(err).Str("remote_id", remoteID).Msg("failed to cancel remote job")
	}
	return ErrCancelled
}

// fetchModel downloads the best-model document and wraps it as a Model.
func (c *AutoMLClient) fetchModel(ctx context.Context, remoteID string) (*RegressionResult, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+remoteID+"/model", nil)
	if err != nil {
		return nil, err
	}

	var resp modelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode model response: %v", ErrRemote, err)
	}

	score, ok := resp.Metrics[c.cfg.PrimaryMetric]
	if !ok {
		return nil, fmt.Errorf("%w: model response missing primary metric %q", ErrRemote, c.cfg.PrimaryMetric)
	}

	return &RegressionResult{
		ModelHandle: resp.ModelID,
		Model:       &remoteModel{client: c, modelID: resp.ModelID},
		Metrics: Metrics{
			Primary: c.cfg.PrimaryMetric,
			Score:   score,
			All:     resp.Metrics,
		},
		Trained:    time.Now().UTC(),
		Importance: resp.Importance,
	}, nil
}

// do performs one HTTP call through the circuit breaker and returns the
// response body. Non-2xx responses and transport errors count as breaker
// failures and surface as ErrRemote.
func (c *AutoMLClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck // response body

		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 256))
		}
		return data, nil
	})
	if err != nil {
		// Preserve context cancellation distinctly from remote failures.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return body, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// remoteModel scores feature vectors against the service's prediction
// endpoint for a fitted model.
type remoteModel struct {
	client  *AutoMLClient
	modelID string
}

// Predict implements Model.
func (m *remoteModel) Predict(ctx context.Context, features map[string]float64) (float64, error) {
	body, err := m.client.do(ctx, http.MethodPost, "/v1/models/"+m.modelID+"/predict",
		map[string]any{"features": features})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Prediction float64 `json:"prediction"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode prediction: %v", ErrRemote, err)
	}
	return resp.Prediction, nil
}
