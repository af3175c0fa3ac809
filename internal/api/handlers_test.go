// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/audit"
	"github.com/tomtom215/monetarius/internal/clv"
	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/ingest"
	"github.com/tomtom215/monetarius/internal/models"
	"github.com/tomtom215/monetarius/internal/ratings"
	"github.com/tomtom215/monetarius/internal/store"
	"github.com/tomtom215/monetarius/internal/training"
)

// fakeRegressionTrainer satisfies training.RegressionTrainer without a
// remote service.
type fakeRegressionTrainer struct {
	result *training.RegressionResult
	err    error
	rows   []models.LabeledRow
}

func (f *fakeRegressionTrainer) Train(_ context.Context, rows []models.LabeledRow) (*training.RegressionResult, error) {
	f.rows = rows
	return f.result, f.err
}

type fakeRatingsTrainer struct {
	result *training.RatingsResult
	err    error
}

func (f *fakeRatingsTrainer) Train(_ context.Context, _ []models.RatingRow) (*training.RatingsResult, error) {
	return f.result, f.err
}

type testEnv struct {
	handler *Handler
	server  *httptest.Server
	store   *store.Store
	reg     *fakeRegressionTrainer
	rat     *fakeRatingsTrainer
	cfg     *config.Config
	audit   *audit.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	txCSV := `InvoiceNo,CustomerID,InvoiceDate,Quantity,UnitPrice
536365,17850.0,2011-03-01 08:26:00,2,5.0
536366,17850.0,2011-07-10 09:00:00,1,20.0
`
	actionsCSV := `itemid,visitorid,event
100,1,view
100,1,view
100,1,cart
200,2,view
`
	txPath := filepath.Join(dir, "tx.csv")
	actionsPath := filepath.Join(dir, "actions.csv")
	if err := os.WriteFile(txPath, []byte(txCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(actionsPath, []byte(actionsCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Ingest.TransactionsPath = txPath
	cfg.Ingest.ActionsPath = actionsPath

	st, err := store.Open(config.DatabaseConfig{Path: ":memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reader := ingest.NewReader(cfg.Ingest)
	clvPipeline := clv.NewPipeline(cfg.CLV, reader, zerolog.Nop())
	ratingsPipeline, err := ratings.NewPipeline(cfg.Ratings, reader, zerolog.Nop())
	if err != nil {
		t.Fatalf("ratings.NewPipeline() error = %v", err)
	}

	reg := &fakeRegressionTrainer{
		result: &training.RegressionResult{
			ModelHandle: "model-1",
			Metrics: training.Metrics{
				Primary: "normalized_root_mean_squared_error",
				Score:   0.2,
			},
			Trained: time.Now().UTC(),
		},
	}
	rat := &fakeRatingsTrainer{
		result: &training.RatingsResult{
			Metrics: training.Metrics{Primary: "normalized_rmse", Score: 0.1},
			Trained: time.Now().UTC(),
		},
	}

	auditStore := audit.NewMemoryStore(100)
	recorder := audit.NewRecorder(auditStore, 100, zerolog.Nop())
	t.Cleanup(recorder.Close)

	handler := &Handler{
		cfg:     cfg,
		store:   st,
		clv:     clvPipeline,
		ratings: ratingsPipeline,
		jobs:    training.NewManager(nil, zerolog.Nop()),
		automl:  reg,
		svd:     rat,
		audit:   recorder,
		logger:  zerolog.Nop(),
	}

	srv := httptest.NewServer(NewRouter(cfg.Server, handler))
	t.Cleanup(srv.Close)

	return &testEnv{handler: handler, server: srv, store: st, reg: reg, rat: rat, cfg: cfg, audit: auditStore}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup

	var decoded APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Success {
		t.Error("expected success response")
	}
}

func TestRunCLVPersistsLabeled(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/pipelines/clv/run", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %+v", resp.StatusCode, body.Error)
	}

	labeled, err := env.store.LoadLabeled(context.Background())
	if err != nil {
		t.Fatalf("LoadLabeled() error = %v", err)
	}
	if len(labeled) != 1 {
		t.Fatalf("persisted %d labeled rows, want 1", len(labeled))
	}
	if labeled[0].CustomerID != 17850 || labeled[0].MonetaryNext != 20 {
		t.Errorf("labeled row = %+v", labeled[0])
	}
}

func TestRunRatingsPersistsRatings(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/pipelines/ratings/run", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %+v", resp.StatusCode, body.Error)
	}

	rows, err := env.store.LoadRatings(context.Background())
	if err != nil {
		t.Fatalf("LoadRatings() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("persisted %d ratings, want 2", len(rows))
	}
}

func TestRunCLVMissingFile(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/pipelines/clv/run",
		map[string]string{"path": filepath.Join(t.TempDir(), "absent.csv")})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != ErrCodeInternalError {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestArtifactsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	if resp, _ := env.do(t, http.MethodPost, "/api/v1/pipelines/clv/run", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("pipeline run failed with status %d", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/artifacts/labeled", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	rows, ok := body.Data.([]any)
	if !ok || len(rows) != 1 {
		t.Errorf("artifacts data = %+v, want 1 row", body.Data)
	}
}

func TestTrainBlockingRecordsRun(t *testing.T) {
	env := newTestEnv(t)

	if resp, _ := env.do(t, http.MethodPost, "/api/v1/pipelines/clv/run", nil); resp.StatusCode != http.StatusOK {
		t.Fatal("pipeline run failed")
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/training/jobs",
		map[string]any{"trainer": "automl", "blocking": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %+v", resp.StatusCode, body.Error)
	}
	if len(env.reg.rows) != 1 {
		t.Errorf("trainer received %d rows, want 1", len(env.reg.rows))
	}

	runs, err := env.store.ListTrainingRuns(context.Background())
	if err != nil {
		t.Fatalf("ListTrainingRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Kind != "automl" || runs[0].ModelHandle != "model-1" {
		t.Errorf("training runs = %+v", runs)
	}
}

func TestTrainRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.reg.result = nil
	env.reg.err = training.ErrRemote

	resp, body := env.do(t, http.MethodPost, "/api/v1/training/jobs",
		map[string]any{"trainer": "automl", "blocking": true})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != ErrCodeExternalServiceFail {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestTrainValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/training/jobs",
		map[string]any{"trainer": "xgboost"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/training/jobs/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestCancelJobNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/training/jobs/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobsListEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/training/jobs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Success {
		t.Error("expected success response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuditTrailRecordsPipelineRuns(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/pipelines/clv/run", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error: %+v)", resp.StatusCode, body.Error)
	}

	// Flush the async writer before inspecting the store.
	env.handler.audit.Close()

	events, err := env.audit.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}

	event := events[0]
	if event.Type != audit.EventTypeCLVRun {
		t.Errorf("Type = %s, want %s", event.Type, audit.EventTypeCLVRun)
	}
	if event.Outcome != audit.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success", event.Outcome)
	}
	if event.RowsRead != 2 {
		t.Errorf("RowsRead = %d, want 2", event.RowsRead)
	}
	if event.InputPath != env.cfg.Ingest.TransactionsPath {
		t.Errorf("InputPath = %q", event.InputPath)
	}
}

func TestAuditEventsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if resp, _ := env.do(t, http.MethodPost, "/api/v1/pipelines/ratings/run", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("pipeline run status = %d", resp.StatusCode)
	}
	env.handler.audit.Close()

	resp, body := env.do(t, http.MethodGet, "/api/v1/audit/events", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Success {
		t.Error("expected success response")
	}

	raw, err := json.Marshal(body.Data)
	if err != nil {
		t.Fatal(err)
	}
	var events []audit.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("decoding events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != audit.EventTypeRatingsRun {
		t.Errorf("Type = %s, want %s", events[0].Type, audit.EventTypeRatingsRun)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.Default()
	cfg.Server.CORSAllowedOrigins = []string{"http://localhost:3000"}

	srv := httptest.NewServer(NewRouter(cfg.Server, &Handler{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup

	// go-chi/cors reflects the specific origin
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the requesting origin", got)
	}
}
