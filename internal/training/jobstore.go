// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

package training

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// jobKeyPrefix namespaces job records in the store.
const jobKeyPrefix = "job:"

// JobStore persists job records in BadgerDB so partial run state survives
// restarts and remains available for diagnostics after failures.
type JobStore struct {
	db *badger.DB
}

// OpenJobStore opens (or creates) a BadgerDB-backed job store at dir.
func OpenJobStore(dir string) (*JobStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is noisy; job transitions are logged by the manager
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("training: open job store: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Put writes or replaces a job record.
func (s *JobStore) Put(record *JobRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("training: marshal job %s: %w", record.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(jobKeyPrefix+record.ID), data)
	})
}

// Get fetches a job record by id. Returns ErrJobNotFound for unknown ids.
func (s *JobStore) Get(id string) (*JobRecord, error) {
	var record JobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns all persisted job records.
func (s *JobStore) List() ([]*JobRecord, error) {
	var records []*JobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record JobRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying BadgerDB.
func (s *JobStore) Close() error {
	return s.db.Close()
}
