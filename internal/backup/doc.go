// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package backup creates, stores, verifies and expires PostgreSQL backups.
//
// A backup is a pg_dump artifact (plain SQL or custom archive), optionally
// compressed and encrypted, described by a Record that is persisted at every
// state transition.
//
// # Record Lifecycle
//
//	creating ──▶ completed ──▶ uploading ──▶ uploaded
//	    │            ▲             │            │
//	    ▼            └─────────────┘            │
//	  failed ◀─────────────────────┘  ◀─────────┘ (re-upload)
//
// Status.CanTransition enforces the allowed edges. failed is terminal.
//
// # Components
//
//   - Engine: creates backups (dump, encode, checksum, metadata, upload),
//     lists, fetches and deletes records, and materialises artifacts
//     locally (EnsureLocal, OpenPlain)
//   - Verifier: shallow verification (size, checksum, format marker) and
//     deep verification (restore into a scratch database)
//   - Applier: applies a decoded dump to a database with pg_restore or psql;
//     shared by deep verification and the restore orchestrator
//   - CleanupExpired: retention by age
//
// # Artifact Names
//
//	backup_<appver>_pg<major>_<instance>_<YYYYMMDDTHHMMSSZ>.<sql|dump>[.zst|.lz4|.gz][.enc]
//
// # Record Stores
//
// Records live in the dbwarden_backups table (PostgresStore) or, as a
// fallback that survives restores of the managed database, in BadgerDB
// (BadgerStore). MemoryStore backs tests.
//
// # Usage
//
//	engine, err := backup.NewEngine(backup.Deps{...})
//	rec, err := engine.CreateBackup(ctx, backup.CreateRequest{
//	    Type:        backup.TypeManual,
//	    Description: "before migration 42",
//	})
//
//	verifier := backup.NewVerifier(engine, admin)
//	res, err := verifier.VerifyBackup(ctx, rec.ID)
package backup
