// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package queue

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// viewedKeyPrefix namespaces viewed-set entries in the shared BadgerDB.
const viewedKeyPrefix = "viewed:"

// BadgerViewedStore persists the viewed-set in BadgerDB, the local
// durable key-value store of the browser profile directory. Entries have
// no expiry; they live until Clear.
type BadgerViewedStore struct {
	db *badger.DB
}

// NewBadgerViewedStore wraps an open BadgerDB handle.
func NewBadgerViewedStore(db *badger.DB) *BadgerViewedStore {
	return &BadgerViewedStore{db: db}
}

// Load reads the full viewed-set. Called once at startup.
func (s *BadgerViewedStore) Load() (map[string]struct{}, error) {
	viewed := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(viewedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			viewed[string(key[len(prefix):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load viewed set: %w", err)
	}

	return viewed, nil
}

// Add persists one viewed id. Written on every viewed-set mutation.
func (s *BadgerViewedStore) Add(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(viewedKeyPrefix + id)
		return txn.Set(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("set viewed id: %w", err)
	}
	return nil
}

// Clear drops every viewed entry. Paired with the in-memory reset so the
// set and its persisted copy never diverge.
func (s *BadgerViewedStore) Clear() error {
	if err := s.db.DropPrefix([]byte(viewedKeyPrefix)); err != nil {
		return fmt.Errorf("drop viewed prefix: %w", err)
	}
	return nil
}
