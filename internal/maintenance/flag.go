// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Flag is the persisted maintenance marker.
type Flag struct {
	Active bool      `json:"active"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// FlagStore persists the maintenance flag so a crash mid-restore is
// detected on the next start.
type FlagStore interface {
	SaveFlag(ctx context.Context, flag Flag) error
	LoadFlag(ctx context.Context) (Flag, error)
	ClearFlag(ctx context.Context) error
}

const flagKey = "maintenance:flag"

// BadgerFlagStore implements FlagStore using BadgerDB.
type BadgerFlagStore struct {
	db *badger.DB
}

// NewBadgerFlagStore creates a flag store. The caller owns db.
func NewBadgerFlagStore(db *badger.DB) *BadgerFlagStore {
	return &BadgerFlagStore{db: db}
}

// SaveFlag implements FlagStore.
func (s *BadgerFlagStore) SaveFlag(_ context.Context, flag Flag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("marshal maintenance flag: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(flagKey), data)
	})
}

// LoadFlag implements FlagStore. A missing flag is inactive.
func (s *BadgerFlagStore) LoadFlag(_ context.Context) (Flag, error) {
	var flag Flag
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(flagKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &flag)
		})
	})
	return flag, err
}

// ClearFlag implements FlagStore.
func (s *BadgerFlagStore) ClearFlag(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(flagKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// MemoryFlagStore implements FlagStore in memory.
type MemoryFlagStore struct {
	mu   sync.Mutex
	flag Flag
}

// SaveFlag implements FlagStore.
func (s *MemoryFlagStore) SaveFlag(_ context.Context, flag Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flag = flag
	return nil
}

// LoadFlag implements FlagStore.
func (s *MemoryFlagStore) LoadFlag(context.Context) (Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flag, nil
}

// ClearFlag implements FlagStore.
func (s *MemoryFlagStore) ClearFlag(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flag = Flag{}
	return nil
}
