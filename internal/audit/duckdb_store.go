// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
// The audit trail shares the database that holds the pipeline artifacts.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed audit store.
// Call CreateTable before the first Save.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			input_path TEXT,
			rows_read BIGINT,
			rows_kept BIGINT,
			rows_dropped JSON,
			duration_ms BIGINT,
			detail TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
	`

	statements := strings.Split(query, ";")
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	var dropped []byte
	if len(event.RowsDropped) > 0 {
		var err error
		dropped, err = json.Marshal(event.RowsDropped)
		if err != nil {
			return fmt.Errorf("failed to marshal drop counts: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, timestamp, type, outcome, input_path, rows_read, rows_kept, rows_dropped, duration_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), string(event.Outcome),
		event.InputPath, event.RowsRead, event.RowsKept, nullableJSON(dropped),
		event.DurationMs, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *DuckDBStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, type, outcome, input_path, rows_read, rows_kept, rows_dropped, duration_ms, detail
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event     Event
			eventType string
			outcome   string
			inputPath sql.NullString
			dropped   sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &eventType, &outcome,
			&inputPath, &event.RowsRead, &event.RowsKept, &dropped,
			&event.DurationMs, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Type = EventType(eventType)
		event.Outcome = Outcome(outcome)
		event.InputPath = inputPath.String
		event.Detail = detail.String
		if dropped.Valid && dropped.String != "" {
			if err := json.Unmarshal([]byte(dropped.String), &event.RowsDropped); err != nil {
				return nil, fmt.Errorf("failed to decode drop counts: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// nullableJSON converts an empty blob to SQL NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
