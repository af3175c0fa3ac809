// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Recorder buffers audit events and writes them to the store from a
// background goroutine so pipeline runs never block on audit I/O.
type Recorder struct {
	store     Store
	logger    zerolog.Logger
	eventChan chan *Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Int64
	closeOnce sync.Once
}

// NewRecorder creates a Recorder writing to store. bufferSize <= 0 uses
// a default of 1000.
//
//nolint:gocritic // zerolog loggers are passed by value
func NewRecorder(store Store, bufferSize int, logger zerolog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	r := &Recorder{
		store:     store,
		logger:    logger.With().Str("component", "audit").Logger(),
		eventChan: make(chan *Event, bufferSize),
		stopChan:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.writer()

	return r
}

// Record queues an event for persistence. It never blocks: when the
// buffer is full the event is counted as dropped and logged.
func (r *Recorder) Record(event *Event) {
	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case r.eventChan <- event:
	default:
		r.dropped.Add(1)
		r.logger.Warn().
			Str("type", string(event.Type)).
			Int64("dropped_total", r.dropped.Load()).
			Msg("Audit buffer full, event dropped")
	}
}

// Recent returns up to limit stored events, newest first. Events still
// sitting in the buffer are not visible yet.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	return r.store.Recent(ctx, limit)
}

// Dropped returns the number of events discarded due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains pending events and stops the writer. Safe to call more
// than once.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
	})
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-r.eventChan:
					r.write(event)
				default:
					return
				}
			}
		case event := <-r.eventChan:
			r.write(event)
		}
	}
}

func (r *Recorder) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Save(ctx, event); err != nil {
		r.logger.Error().Err(err).
			Str("type", string(event.Type)).
			Msg("Failed to persist audit event")
	}
}

// newEventID returns a random 16-byte hex identifier.
func newEventID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken
		return "audit-" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(buf)
}
