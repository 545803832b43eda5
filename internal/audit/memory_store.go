// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for tests and one-shot CLI commands. Data is lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{maxLen: maxLen}
}

// Save persists an entry.
func (s *MemoryStore) Save(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop the oldest 10% when full
	if len(s.entries) >= s.maxLen {
		s.entries = s.entries[max(1, s.maxLen/10):]
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			e := s.entries[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// List returns entries matching the filter, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	matched := make([]Entry, 0, len(s.entries))
	for i := range s.entries {
		if filter.matches(&s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	s.mu.RUnlock()

	return sortAndLimit(matched, filter.Limit), nil
}

func sortAndLimit(entries []Entry, limit int) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
