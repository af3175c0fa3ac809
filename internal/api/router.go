// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/metrics"
)

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg config.ServerConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	rateReqs := cfg.RateLimitReqs
	if rateReqs <= 0 {
		rateReqs = 100
	}
	rateWindow := cfg.RateLimitWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rateReqs, rateWindow))

		r.Get("/health", handler.Health)

		r.Route("/pipelines", func(r chi.Router) {
			r.Post("/clv/run", handler.RunCLV)
			r.Post("/ratings/run", handler.RunRatings)
		})

		r.Route("/artifacts", func(r chi.Router) {
			r.Get("/labeled", handler.LabeledFeatures)
			r.Get("/ratings", handler.Ratings)
		})

		r.Route("/training", func(r chi.Router) {
			r.Post("/jobs", handler.Train)
			r.Get("/jobs", handler.Jobs)
			r.Get("/jobs/{id}", handler.JobStatus)
			r.Delete("/jobs/{id}", handler.CancelJob)
			r.Get("/runs", handler.TrainingRuns)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", handler.AuditEvents)
		})
	})

	return r
}

// requestMetrics counts requests per route pattern and status.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveRequest(r.Method, pattern, ww.Status())
	})
}
