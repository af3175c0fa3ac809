// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/monetarius/internal/metrics"
)

// JobState is the lifecycle state of a training job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// JobRecord is the persisted view of a training job. The in-memory result
// object is not serialized; what survives a restart is the diagnostic
// state: lifecycle timestamps, the remote job id if any, and the error.
type JobRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // "automl", "svd"
	State       JobState  `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`

	// RemoteID is the training service's own job identifier, when the
	// trainer is remote. Preserved for post-mortem correlation.
	RemoteID string `json:"remote_id,omitempty"`

	// Error is the failure message for failed jobs.
	Error string `json:"error,omitempty"`
}

// job pairs a record with its live execution state.
type job struct {
	record JobRecord
	cancel context.CancelFunc
	result any
}

// JobFunc performs the training work for one job. The reportRemoteID
// callback stores the external service's job id on the record as soon as
// it is known.
type JobFunc func(ctx context.Context, reportRemoteID func(string)) (any, error)

// Manager tracks training jobs in both blocking and submitted modes.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	store  *JobStore
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewManager creates a job manager. store may be nil for in-memory-only
// tracking (tests, one-shot CLI runs).
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewManager(store *JobStore, logger zerolog.Logger) *Manager {
	m := &Manager{
		jobs:   make(map[string]*job),
		store:  store,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
	m.restore()
	return m
}

// restore loads persisted job records so diagnostics survive restarts.
// Jobs that were still in flight when the previous process exited cannot
// resume and are marked failed.
func (m *Manager) restore() {
	if m.store == nil {
		return
	}
	records, err := m.store.List()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to restore persisted job records")
		return
	}

	for _, record := range records {
		if !record.State.Terminal() {
			record.State = JobFailed
			record.FinishedAt = time.Now().UTC()
			record.Error = "interrupted by restart"
			m.persist(*record)
		}
		m.jobs[record.ID] = &job{record: *record}
	}
	if len(records) > 0 {
		m.logger.Info().Int("jobs", len(records)).Msg("restored persisted job records")
	}
}

// Submit starts fn in the background and returns the new job's record
// immediately. Progress is observed through Status.
func (m *Manager) Submit(kind string, fn JobFunc) JobRecord {
	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		record: JobRecord{
			ID:          uuid.NewString(),
			Kind:        kind,
			State:       JobPending,
			SubmittedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[j.record.ID] = j
	m.mu.Unlock()
	m.persist(j.record)

	m.logger.Info().Str("job_id", j.record.ID).Str("kind", kind).Msg("job submitted")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, j.record.ID, fn)
	}()

	return j.record
}

// run executes one job and records its terminal state.
func (m *Manager) run(ctx context.Context, id string, fn JobFunc) {
	start := time.Now()
	m.transition(id, func(r *JobRecord) {
		r.State = JobRunning
		r.StartedAt = start.UTC()
	})

	reportRemoteID := func(remoteID string) {
		m.transition(id, func(r *JobRecord) { r.RemoteID = remoteID })
	}

	result, err := fn(ctx, reportRemoteID)

	var kind string
	m.mu.RLock()
	if j, ok := m.jobs[id]; ok {
		kind = j.record.Kind
	}
	m.mu.RUnlock()

	switch {
	case err == nil:
		m.mu.Lock()
		if j, ok := m.jobs[id]; ok {
			j.result = result
		}
		m.mu.Unlock()
		m.transition(id, func(r *JobRecord) {
			r.State = JobSucceeded
			r.FinishedAt = time.Now().UTC()
		})
		metrics.TrainingJobs.WithLabelValues(kind, "succeeded").Inc()
		m.logger.Info().Str("job_id", id).Dur("duration", time.Since(start)).Msg("job succeeded")

	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		m.transition(id, func(r *JobRecord) {
			r.State = JobCancelled
			r.FinishedAt = time.Now().UTC()
		})
		metrics.TrainingJobs.WithLabelValues(kind, "cancelled").Inc()
		m.logger.Info().Str("job_id", id).Msg("job cancelled")

	default:
		m.transition(id, func(r *JobRecord) {
			r.State = JobFailed
			r.FinishedAt = time.Now().UTC()
			r.Error = err.Error()
		})
		metrics.TrainingJobs.WithLabelValues(kind, "failed").Inc()
		m.logger.Error().Str("job_id", id).Err(err).Msg("job failed")
	}

	metrics.TrainingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// transition applies mutate to the job's record under lock and persists it.
func (m *Manager) transition(id string, mutate func(*JobRecord)) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	mutate(&j.record)
	record := j.record
	m.mu.Unlock()

	m.persist(record)
}

// persist writes the record to the durable store, if one is configured.
// Persistence failures are logged, not fatal: the in-memory state remains
// authoritative for a live process.
func (m *Manager) persist(record JobRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(&record); err != nil {
		m.logger.Warn().Err(err).Str("job_id", record.ID).Msg("failed to persist job record")
	}
}

// Status returns the current record for a job.
func (m *Manager) Status(id string) (JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return JobRecord{}, ErrJobNotFound
	}
	return j.record, nil
}

// Result returns the job's result object once it has succeeded.
func (m *Manager) Result(id string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.record.State != JobSucceeded {
		return nil, errors.New("training: job has no result in state " + string(j.record.State))
	}
	return j.result, nil
}

// Cancel requests cancellation of a running job. Cancelling a terminal
// job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	if j.record.State.Terminal() {
		return nil
	}
	j.cancel()
	return nil
}

// List returns all known job records, newest first.
func (m *Manager) List() []JobRecord {
	m.mu.RLock()
	records := make([]JobRecord, 0, len(m.jobs))
	for _, j := range m.jobs {
		records = append(records, j.record)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, k int) bool {
		return records[i].SubmittedAt.After(records[k].SubmittedAt)
	})
	return records
}

// Wait blocks until all submitted jobs have finished. Used during
// shutdown and in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}
