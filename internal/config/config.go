// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package config loads and validates Monetarius configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest wins):
//   - Environment variables (SERVER_PORT, CLV_MAX_QUANTITY, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
package config

import "time"

// Config is the root configuration for all Monetarius components.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	CLV      CLVConfig      `koanf:"clv"`
	Ratings  RatingsConfig  `koanf:"ratings"`
	Training TrainingConfig `koanf:"training"`
	Refresh  RefreshConfig  `koanf:"refresh"`
}

// RefreshConfig schedules automatic artifact re-derivation in server mode.
type RefreshConfig struct {
	// Enabled turns the scheduled refresh service on.
	Enabled bool `koanf:"enabled"`

	// RunOnStartup refreshes artifacts as soon as the server starts.
	RunOnStartup bool `koanf:"run_on_startup"`

	// Interval is the time between refreshes.
	Interval time.Duration `koanf:"interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. Empty means same-origin only.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitReqs is the allowed requests per window per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB artifact-store settings.
type DatabaseConfig struct {
	// Path is the DuckDB file path, or ":memory:" for ephemeral runs.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// IngestConfig holds tabular-file loading settings.
type IngestConfig struct {
	// TransactionsPath is the transaction CSV for the CLV pipeline.
	TransactionsPath string `koanf:"transactions_path"`

	// ActionsPath is the user-item action CSV for the ratings pipeline.
	ActionsPath string `koanf:"actions_path"`

	// Encoding names the source character encoding. Supported values:
	// utf-8 (default), windows-1252, iso-8859-1, iso-8859-9.
	// Retail exports from legacy systems frequently arrive in single-byte
	// code pages rather than UTF-8.
	Encoding string `koanf:"encoding"`

	// DateFormat is the Go reference layout for the timestamp column.
	DateFormat string `koanf:"date_format"`

	// Comma is the CSV field delimiter.
	Comma string `koanf:"comma"`
}

// CLVConfig holds the CLV (RFM) pipeline settings.
type CLVConfig struct {
	// PeriodBoundaries is the ordered list of boundary dates (YYYY-MM-DD)
	// splitting the event log into N+1 periods. A timestamp equal to a
	// boundary falls into the later period.
	PeriodBoundaries []string `koanf:"period_boundaries"`

	// ReferenceEndDates maps each period (index 0 = period 1) to the
	// calendar day used as the Recency reference. When empty and
	// DeriveReferenceDates is false, loading fails validation.
	ReferenceEndDates []string `koanf:"reference_end_dates"`

	// DeriveReferenceDates derives each period's reference end date from
	// the maximum observed timestamp in that period instead of the
	// configured list.
	DeriveReferenceDates bool `koanf:"derive_reference_dates"`

	// MaxQuantity and MaxUnitPrice are the fixed outlier ceilings.
	// Rows at or above the ceiling are dropped.
	MaxQuantity  float64 `koanf:"max_quantity"`
	MaxUnitPrice float64 `koanf:"max_unit_price"`
}

// RatingsConfig holds the implicit-rating pipeline settings.
type RatingsConfig struct {
	// ActionWeights maps action type to its score weight.
	ActionWeights map[string]float64 `koanf:"action_weights"`

	// Scale is the upper bound of the normalized rating range [0, Scale].
	Scale float64 `koanf:"scale"`
}

// TrainingConfig holds training-service settings.
type TrainingConfig struct {
	// AutoML configures the remote regression service.
	AutoML AutoMLConfig `koanf:"automl"`

	// SVD configures the in-process collaborative-filtering trainer.
	SVD SVDConfig `koanf:"svd"`

	// JobStorePath is the BadgerDB directory for durable job state.
	// Empty means in-memory job tracking only.
	JobStorePath string `koanf:"job_store_path"`
}

// AutoMLConfig configures the remote AutoML regression service client.
type AutoMLConfig struct {
	// Endpoint is the base URL of the AutoML service.
	Endpoint string `koanf:"endpoint"`

	// APIKey authenticates requests to the service.
	APIKey string `koanf:"api_key"`

	// Iterations is the number of candidate models the service explores.
	Iterations int `koanf:"iterations"`

	// IterationTimeout bounds a single candidate's training time.
	// Passed opaquely to the service; not enforced locally.
	IterationTimeout time.Duration `koanf:"iteration_timeout"`

	// PrimaryMetric is the optimization target (e.g.
	// normalized_root_mean_squared_error).
	PrimaryMetric string `koanf:"primary_metric"`

	// CrossValidations is the number of CV folds the service uses.
	CrossValidations int `koanf:"cross_validations"`

	// PollInterval is the minimum spacing between status polls.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// SVDConfig configures the gorse SVD trainer.
type SVDConfig struct {
	Factors      int     `koanf:"factors"`
	Epochs       int     `koanf:"epochs"`
	LearningRate float64 `koanf:"learning_rate"`
	Reg          float64 `koanf:"reg"`

	// Folds is the number of cross-validation folds.
	Folds int `koanf:"folds"`
}

// Default returns a Config with all built-in default values.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8317,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/monetarius.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Ingest: IngestConfig{
			Encoding:   "utf-8",
			DateFormat: "2006-01-02 15:04:05",
			Comma:      ",",
		},
		CLV: CLVConfig{
			PeriodBoundaries:     []string{"2011-06-01"},
			ReferenceEndDates:    []string{"2011-05-31", "2011-12-09"},
			DeriveReferenceDates: false,
			MaxQuantity:          30,
			MaxUnitPrice:         30,
		},
		Ratings: RatingsConfig{
			ActionWeights: map[string]float64{
				"view":     15,
				"cart":     50,
				"purchase": 100,
			},
			Scale: 10,
		},
		Training: TrainingConfig{
			AutoML: AutoMLConfig{
				Endpoint:         "",
				Iterations:       30,
				IterationTimeout: 30 * time.Minute,
				PrimaryMetric:    "normalized_root_mean_squared_error",
				CrossValidations: 5,
				PollInterval:     10 * time.Second,
			},
			SVD: SVDConfig{
				Factors:      100,
				Epochs:       20,
				LearningRate: 0.005,
				Reg:          0.02,
				Folds:        5,
			},
			JobStorePath: "/data/jobs",
		},
		Refresh: RefreshConfig{
			Enabled:      false,
			RunOnStartup: true,
			Interval:     24 * time.Hour,
		},
	}
}
