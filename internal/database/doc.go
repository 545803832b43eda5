// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package database provides PostgreSQL access for DBWarden.
//
// # Overview
//
// The package is organized by concern:
//   - conn.go: connection parameters, the Querier interface, libpq argument and
//     environment rendering for pg_dump/pg_restore/psql
//   - pool.go: the application pgxpool wrapper that can be drained before an
//     exclusive restore and reconnected afterwards
//   - admin.go: maintenance-database operations (terminate backends, drop and
//     create databases, scratch databases for deep verification)
//   - inspect.go: catalog queries for backup metadata, verification and restore
//     preflight (size, table count, schema checksum, key table row counts)
//   - migrate.go: goose migrations for the record and audit tables
//   - badger.go: the embedded BadgerDB used when records.store is badger
//
// The query subpackage builds parameterized WHERE clauses for the stores.
//
// # Draining
//
// While a restore holds the pool drained, Exec/Query/QueryRow fail with
// ErrPoolDrained instead of waiting for a connection:
//
//	pool.Drain()
//	defer pool.Reconnect(ctx)
//
// # Thread Safety
//
// Pool and Admin are safe for concurrent use.
package database
