// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package restore replaces the managed database with the contents of a backup.

# Paths

A restore takes one of two paths:

  - online: the dump is applied with --single-transaction while the database
    stays in place. A failure rolls everything back. Dumps containing
    ALTER SYSTEM, VACUUM, REINDEX, ANALYZE or CLUSTER at statement start are
    rejected before anything is paused.
  - exclusive: other backends are terminated and the database is dropped and
    recreated before the dump is applied. There is a data-loss window between
    the drop and a successful apply. If the apply fails, the record store is
    migrated and reconciled in the empty database so the failure is audited
    and the restore can be retried.

The exclusive path is forced when DROP DATABASE or CREATE DATABASE appears in
the first 100 KiB of a plain dump, when a custom archive's table of contents
carries a database entry (pg_dump --create), or when Options.DropDatabase is
set. The
header check is a text heuristic; the chosen path and its reason are returned
in Result.Details as path and path_reason.

# Progress

Every state transition updates the SessionStore and is sent to observers as
a ProgressEvent. The WebSocket hub and the NATS event publisher are
observers.

# Usage

	orch, err := restore.NewOrchestrator(restore.Deps{
	    Config:      cfg.Restore,
	    Backups:     engine,
	    Verifier:    verifier,
	    Applier:     backup.NewApplier(engine.Tools()),
	    Maintenance: coord,
	    Pool:        pool,
	    Admin:       admin,
	    Inspector:   restore.NewInspector(pool),
	    Audit:       recorder,
	})

	id, err := orch.StartRestore(ctx, backupID, restore.Options{
	    ConfirmationText: restore.ConfirmationText,
	})
	session, err := orch.Sessions().Get(id)

Only one restore runs at a time; a second request gets ErrRestoreInProgress.
*/
package restore
