// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package testinfra starts real PostgreSQL servers for integration tests.
//
// It wraps the testcontainers-go postgres module. Files are built only with
// the integration tag, so unit test runs never need Docker:
//
//	go test -tags integration ./...
//
// # PostgreSQL Container
//
//	func TestBackupRoundTrip(t *testing.T) {
//	    pg := testinfra.StartPostgres(t)
//	    params, err := database.ParseConnString(pg.URL)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    // Open a pool, run migrations, take a dump ...
//	}
//
// StartPostgres skips the test when Docker is unavailable and terminates the
// container in t.Cleanup. Tests that shell out to pg_dump, pg_restore or psql
// also call SkipIfNoClientTools.
package testinfra
