// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package audit records the outcome of every backup run, retention cleanup
// and restore attempt.
//
// # Overview
//
// An audit entry is written once per terminal event. Intermediate states
// (a backup that is still uploading, a restore that is dropping the
// database) are never persisted; they are visible through structured logs
// and restore progress events instead.
//
// # Schedule IDs
//
// Entries carry the schedule that produced them. Besides configured
// schedule IDs three reserved values exist:
//   - manual: backups created through the API or CLI
//   - restore: restore attempts
//   - cleanup: retention cleanup runs
//
// # Statuses
//
//   - success: the operation finished without errors
//   - partial: the operation finished but some items failed (an upload, a
//     retention delete)
//   - failed: the operation did not finish
//   - in_progress: reserved for operations recorded before completion
//
// # Stores
//
// Three Store implementations are provided:
//   - PostgresStore: the dbwarden_audit_log table created by the embedded
//     goose migrations (default)
//   - BadgerStore: an embedded key/value store for deployments where the
//     audit trail must survive restores of the managed database
//   - MemoryStore: tests and the CLI
//
// # Usage Example
//
//	rec := audit.NewRecorder(audit.NewPostgresStore(pool))
//	rec.Record(ctx, &audit.Entry{
//	    ScheduleID: audit.ScheduleRestore,
//	    BackupID:   backupID,
//	    Status:     audit.StatusFailed,
//	    ErrorMessage: err.Error(),
//	})
//
// Record never fails the caller: a store error is logged and swallowed.
//
// # Thread Safety
//
// All store implementations are safe for concurrent use.
package audit
