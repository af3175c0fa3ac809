// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManagerSubmitSucceeds(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	record := m.Submit("svd", func(ctx context.Context, _ func(string)) (any, error) {
		return "model", nil
	})
	if record.ID == "" {
		t.Fatal("expected a job id")
	}
	if record.Kind != "svd" {
		t.Errorf("Kind = %q, want %q", record.Kind, "svd")
	}
	m.Wait()

	status, err := m.Status(record.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != JobSucceeded {
		t.Errorf("State = %q, want %q", status.State, JobSucceeded)
	}
	if status.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}

	result, err := m.Result(record.ID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if result != "model" {
		t.Errorf("Result() = %v, want %q", result, "model")
	}
}

func TestManagerSubmitFails(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	boom := errors.New("boom")
	record := m.Submit("automl", func(ctx context.Context, _ func(string)) (any, error) {
		return nil, boom
	})
	m.Wait()

	status, err := m.Status(record.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != JobFailed {
		t.Errorf("State = %q, want %q", status.State, JobFailed)
	}
	if status.Error != "boom" {
		t.Errorf("Error = %q, want %q", status.Error, "boom")
	}

	if _, err := m.Result(record.ID); err == nil {
		t.Error("expected Result() to fail for a failed job")
	}
}

func TestManagerCancel(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	started := make(chan struct{})
	record := m.Submit("automl", func(ctx context.Context, _ func(string)) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ErrCancelled
	})

	<-started
	if err := m.Cancel(record.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	m.Wait()

	status, err := m.Status(record.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != JobCancelled {
		t.Errorf("State = %q, want %q", status.State, JobCancelled)
	}

	// Cancelling a terminal job is a no-op.
	if err := m.Cancel(record.ID); err != nil {
		t.Errorf("Cancel() on terminal job error = %v", err)
	}
}

func TestManagerReportsRemoteID(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	record := m.Submit("automl", func(ctx context.Context, reportRemoteID func(string)) (any, error) {
		reportRemoteID("remote-42")
		return nil, nil
	})
	m.Wait()

	status, err := m.Status(record.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.RemoteID != "remote-42" {
		t.Errorf("RemoteID = %q, want %q", status.RemoteID, "remote-42")
	}
}

func TestManagerUnknownJob(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	if _, err := m.Status("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Status() error = %v, want ErrJobNotFound", err)
	}
	if _, err := m.Result("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Result() error = %v, want ErrJobNotFound", err)
	}
	if err := m.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel() error = %v, want ErrJobNotFound", err)
	}
}

func TestManagerListNewestFirst(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	noop := func(ctx context.Context, _ func(string)) (any, error) { return nil, nil }
	first := m.Submit("svd", noop)
	time.Sleep(5 * time.Millisecond)
	second := m.Submit("automl", noop)
	m.Wait()

	records := m.List()
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].ID != second.ID {
		t.Errorf("List()[0].ID = %q, want newest job %q", records[0].ID, second.ID)
	}
	if records[1].ID != first.ID {
		t.Errorf("List()[1].ID = %q, want oldest job %q", records[1].ID, first.ID)
	}
}

func TestManagerPersistsRecords(t *testing.T) {
	store, err := OpenJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenJobStore() error = %v", err)
	}
	defer store.Close()

	m := NewManager(store, zerolog.Nop())
	record := m.Submit("svd", func(ctx context.Context, _ func(string)) (any, error) {
		return nil, nil
	})
	m.Wait()

	persisted, err := store.Get(record.ID)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if persisted.State != JobSucceeded {
		t.Errorf("persisted State = %q, want %q", persisted.State, JobSucceeded)
	}
	if persisted.Kind != "svd" {
		t.Errorf("persisted Kind = %q, want %q", persisted.Kind, "svd")
	}
}

func TestManagerRestoresPersistedRecords(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenJobStore(dir)
	if err != nil {
		t.Fatalf("OpenJobStore() error = %v", err)
	}
	finished := &JobRecord{
		ID:          "finished",
		Kind:        "automl",
		State:       JobSucceeded,
		SubmittedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
	}
	inflight := &JobRecord{
		ID:          "inflight",
		Kind:        "svd",
		State:       JobRunning,
		SubmittedAt: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
		StartedAt:   time.Date(2026, 8, 1, 11, 0, 1, 0, time.UTC),
		RemoteID:    "remote-7",
	}
	for _, record := range []*JobRecord{finished, inflight} {
		if err := store.Put(record); err != nil {
			t.Fatalf("Put(%s) error = %v", record.ID, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenJobStore(dir)
	if err != nil {
		t.Fatalf("OpenJobStore() reopen error = %v", err)
	}
	defer reopened.Close()

	m := NewManager(reopened, zerolog.Nop())

	record, err := m.Status("finished")
	if err != nil {
		t.Fatalf("Status(finished) error = %v", err)
	}
	if record.State != JobSucceeded {
		t.Errorf("restored State = %q, want %q", record.State, JobSucceeded)
	}

	record, err = m.Status("inflight")
	if err != nil {
		t.Fatalf("Status(inflight) error = %v", err)
	}
	if record.State != JobFailed {
		t.Errorf("interrupted job State = %q, want %q", record.State, JobFailed)
	}
	if record.Error != "interrupted by restart" {
		t.Errorf("interrupted job Error = %q", record.Error)
	}
	if record.FinishedAt.IsZero() {
		t.Error("interrupted job FinishedAt not set")
	}
	if record.RemoteID != "remote-7" {
		t.Errorf("interrupted job RemoteID = %q, want remote-7", record.RemoteID)
	}

	if got := len(m.List()); got != 2 {
		t.Errorf("List() returned %d records, want 2", got)
	}

	// The interruption is written back to the store.
	persisted, err := reopened.Get("inflight")
	if err != nil {
		t.Fatalf("Get(inflight) error = %v", err)
	}
	if persisted.State != JobFailed {
		t.Errorf("persisted State = %q, want %q", persisted.State, JobFailed)
	}

	// Cancelling a restored terminal job is a no-op.
	if err := m.Cancel("inflight"); err != nil {
		t.Errorf("Cancel(inflight) error = %v", err)
	}
}

func TestJobStoreRoundTrip(t *testing.T) {
	store, err := OpenJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenJobStore() error = %v", err)
	}
	defer store.Close()

	record := &JobRecord{
		ID:          "j1",
		Kind:        "automl",
		State:       JobFailed,
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RemoteID:    "remote-1",
		Error:       "service unavailable",
	}
	if err := store.Put(record); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get("j1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != JobFailed || got.RemoteID != "remote-1" || got.Error != "service unavailable" {
		t.Errorf("Get() = %+v, want original record", got)
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrJobNotFound", err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List() returned %d records, want 1", len(records))
	}
}

func TestJobStateTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobPending, false},
		{JobRunning, false},
		{JobSucceeded, true},
		{JobFailed, true},
		{JobCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
