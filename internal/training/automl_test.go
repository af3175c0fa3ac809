// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/models"
)

func testAutoMLConfig(endpoint string) config.AutoMLConfig {
	return config.AutoMLConfig{
		Endpoint:         endpoint,
		APIKey:           "test-key",
		Iterations:       10,
		IterationTimeout: 5 * time.Minute,
		PrimaryMetric:    "normalized_root_mean_squared_error",
		CrossValidations: 5,
		PollInterval:     time.Millisecond,
	}
}

func labeledRows() []models.LabeledRow {
	return []models.LabeledRow{
		{CustomerID: 1, Period: 1, Recency: 91, Frequency: 2, Monetary: 10, MonetaryNext: 20},
		{CustomerID: 2, Period: 1, Recency: 30, Frequency: 5, Monetary: 120, MonetaryNext: 80},
	}
}

func TestAutoMLTrainBlocking(t *testing.T) {
	var polls atomic.Int32
	var gotSubmit submitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("Authorization = %q, want bearer token", got)
			}
			if err := json.NewDecoder(r.Body).Decode(&gotSubmit); err != nil {
				t.Fatalf("decode submit request: %v", err)
			}
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "queued"})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
			status := "running"
			if polls.Add(1) >= 3 {
				status = "completed"
			}
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: status})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1/model":
			writeJSON(t, w, modelResponse{
				ModelID: "model-9",
				Metrics: map[string]float64{
					"normalized_root_mean_squared_error": 0.17,
					"r2_score":                           0.81,
				},
				Importance: []FeatureImportance{
					{Feature: "monetary", Importance: 0.6},
					{Feature: "frequency", Importance: 0.3},
					{Feature: "recency", Importance: 0.1},
				},
			})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewAutoMLClient(testAutoMLConfig(srv.URL), zerolog.Nop())
	result, err := client.Train(context.Background(), labeledRows())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if result.ModelHandle != "model-9" {
		t.Errorf("ModelHandle = %q, want %q", result.ModelHandle, "model-9")
	}
	if result.Metrics.Primary != "normalized_root_mean_squared_error" {
		t.Errorf("Metrics.Primary = %q", result.Metrics.Primary)
	}
	if result.Metrics.Score != 0.17 {
		t.Errorf("Metrics.Score = %v, want 0.17", result.Metrics.Score)
	}
	if len(result.Importance) != 3 || result.Importance[0].Feature != "monetary" {
		t.Errorf("Importance = %+v, want ranked list starting with monetary", result.Importance)
	}

	if gotSubmit.Task != "regression" {
		t.Errorf("submit Task = %q, want regression", gotSubmit.Task)
	}
	if gotSubmit.LabelColumn != "monetary_next" {
		t.Errorf("submit LabelColumn = %q, want monetary_next", gotSubmit.LabelColumn)
	}
	if len(gotSubmit.Rows) != 2 {
		t.Errorf("submit carried %d rows, want 2", len(gotSubmit.Rows))
	}
}

func TestAutoMLTrainRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "failed", Error: "no converging model"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewAutoMLClient(testAutoMLConfig(srv.URL), zerolog.Nop())
	_, err := client.Train(context.Background(), labeledRows())
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Train() error = %v, want ErrRemote", err)
	}
}

func TestAutoMLTrainCancellation(t *testing.T) {
	cancelled := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "running"})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/jobs/job-1":
			close(cancelled)
			writeJSON(t, w, jobStatusResponse{ID: "job-1", Status: "cancelled"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewAutoMLClient(testAutoMLConfig(srv.URL), zerolog.Nop())
	_, err := client.Train(ctx, labeledRows())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Train() error = %v, want ErrCancelled", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("remote cancel request was never sent")
	}
}

func TestAutoMLTrainEmptyDataset(t *testing.T) {
	client := NewAutoMLClient(testAutoMLConfig("http://unused.invalid"), zerolog.Nop())
	_, err := client.Train(context.Background(), nil)
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("Train() error = %v, want ErrEmptyDataset", err)
	}
}

func TestAutoMLSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewAutoMLClient(testAutoMLConfig(srv.URL), zerolog.Nop())
	_, err := client.Submit(context.Background(), labeledRows())
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Submit() error = %v, want ErrRemote", err)
	}
}

func TestRemoteModelPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/models/model-9/predict" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Features map[string]float64 `json:"features"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode predict request: %v", err)
		}
		if req.Features["recency"] != 42 {
			t.Errorf("recency feature = %v, want 42", req.Features["recency"])
		}
		writeJSON(t, w, map[string]float64{"prediction": 135.5})
	}))
	defer srv.Close()

	client := NewAutoMLClient(testAutoMLConfig(srv.URL), zerolog.Nop())
	m := &remoteModel{client: client, modelID: "model-9"}

	got, err := m.Predict(context.Background(), map[string]float64{
		"recency": 42, "frequency": 3, "monetary": 99.5,
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got != 135.5 {
		t.Errorf("Predict() = %v, want 135.5", got)
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}
