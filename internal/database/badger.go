// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package database

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// OpenBadger opens (or creates) the embedded key/value store used for the
// record, audit and maintenance-flag fallbacks. An empty path opens an
// in-memory store.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	logging.Info().
		Str("path", path).
		Bool("in_memory", path == "").
		Msg("Badger store opened")
	return db, nil
}
