// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
run.go - Restore State Machine

A run owns one restore attempt from maintenance mode to the audit row:

 1. enable maintenance mode and wait for in-flight backups
 2. make the artifact local and re-verify it
 3. capture pre-restore metadata, the target catalog and the backup records
 4. decode, pick the online or exclusive path, preflight the online path
 5. pause services, drain the pool, drop and recreate for the exclusive path
 6. apply the dump
 7. reconnect, migrate, reconcile records, resume, inspect

When a failure follows the drop, the record store is migrated and
reconciled again before the failed audit entry is written.

Every attempt that gets past the confirmation and concurrency checks writes
exactly one audit entry and leaves maintenance mode disabled.
*/

//nolint:staticcheck // File documentation, not package doc
package restore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
	"github.com/tomtom215/dbwarden/internal/sqlscan"
)

type run struct {
	o        *Orchestrator
	id       string
	backupID string
	opts     Options

	rec     *backup.Record
	records []*backup.Record
	path    Path
	reason  string
	details map[string]any
	percent int

	maintenance bool
	paused      bool
	drained     bool
	dropped     bool
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	defer func() {
		r.o.running.Store(false)
		r.o.mu.Unlock()
	}()

	ctx = logging.ContextWithOperation(ctx, "restore", r.id)
	start := r.o.now()

	logging.Ctx(ctx).Info().
		Str("backup_id", r.backupID).
		Str("user_id", r.opts.UserID).
		Str("user_email", r.opts.UserEmail).
		Bool("drop_database", r.opts.DropDatabase).
		Msg("Restore started")
	r.emit(ctx, StatusStarted, "Restore started")

	defer func() {
		if r.maintenance {
			r.o.maintenance.DisableMaintenance(ctx)
		}
	}()

	if err := r.steps(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrRestoreFailed, err)
		r.fail(ctx, err, r.o.now().Sub(start))
		return &Result{Success: false, Message: err.Error(), Details: r.details, RestoreID: r.id}, err
	}

	duration := r.o.now().Sub(start)
	r.details["duration"] = duration.String()
	r.record(ctx, audit.StatusSuccess, "", duration)
	r.o.maintenance.DisableMaintenance(ctx)
	r.maintenance = false

	r.emit(ctx, StatusCompleted, "Restore completed")
	r.finishSession("")
	metrics.RecordRestore(string(r.path), "success", duration)
	logging.Ctx(ctx).Info().
		Str("backup_id", r.backupID).
		Str("path", string(r.path)).
		Dur("duration", duration).
		Msg("Restore completed")

	return &Result{Success: true, Message: "Restore completed", Details: r.details, RestoreID: r.id}, nil
}

func (r *run) steps(ctx context.Context) error {
	o := r.o

	if err := o.maintenance.EnableMaintenance(ctx, "restore "+r.id); err != nil {
		return err
	}
	r.maintenance = true
	r.emit(ctx, StatusMaintenanceMode, "Maintenance mode enabled")

	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.OperationWaitTimeout)
	err := o.maintenance.WaitForOperations(waitCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to wait for in-flight backups: %w", err)
	}

	rec, err := o.backups.GetBackup(ctx, r.backupID)
	if err != nil {
		return err
	}
	if !rec.Status.Restorable() {
		return fmt.Errorf("%w: status %s", backup.ErrNotRestorable, rec.Status)
	}
	r.rec = rec

	if _, statErr := os.Stat(o.backups.LocalPath(rec)); statErr != nil {
		r.emit(ctx, StatusDownloading, "Downloading backup from remote storage")
	}
	if _, err := o.backups.EnsureLocal(ctx, rec); err != nil {
		return fmt.Errorf("failed to fetch backup: %w", err)
	}
	r.emit(ctx, StatusFileReady, "Backup file ready")

	r.emit(ctx, StatusVerifying, "Verifying backup")
	verified, err := o.verifier.VerifyBackup(ctx, rec.ID)
	if err != nil {
		return err
	}
	if err := verified.Err(); err != nil {
		return err
	}

	r.emit(ctx, StatusPreparing, "Preparing restore")
	keyTables := keyTablesOf(rec)
	if pre, err := o.inspector.Snapshot(ctx, keyTables); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to capture pre-restore metadata")
	} else {
		r.details["pre_restore"] = pre
	}
	catalog, err := o.inspector.Catalog(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to load target catalog, SET and CREATE EXTENSION are kept")
		catalog = nil
	}
	records, err := o.backups.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot backup records: %w", err)
	}
	r.records = records

	plain, cleanup, err := o.backups.OpenPlain(ctx, rec)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := r.choosePath(plain); err != nil {
		return err
	}
	if r.path == PathOnline && rec.Format() == backup.FormatSQL {
		if err := preflight(plain); err != nil {
			return err
		}
	}

	report := o.maintenance.PauseAllServices(ctx)
	r.paused = true
	if !report.OK() {
		r.details["pause_failures"] = report.Failed
	}
	o.pool.Drain()
	r.drained = true

	target := o.admin.Params()
	if r.path == PathExclusive {
		r.emit(ctx, StatusDroppingDatabase, "Dropping and recreating database "+target.Database)
		if err := r.recreate(ctx, target.Database); err != nil {
			return err
		}
	} else {
		r.emit(ctx, StatusOnlineRestore, "Restoring inside a single transaction")
	}

	r.emit(ctx, StatusRestoring, "Applying dump")
	applied, err := o.applier.Apply(ctx, target, plain, rec.Format(), backup.ApplyOptions{
		SingleTransaction: r.path == PathOnline,
		Exclusive:         r.path == PathExclusive,
		Catalog:           catalog,
	})
	if err != nil {
		return fmt.Errorf("failed to apply dump: %w", err)
	}
	r.details["tool"] = applied.Tool
	r.details["apply_duration"] = applied.Duration.String()
	if applied.Preprocess != nil {
		r.details["preprocess"] = applied.Preprocess
	}
	r.emit(ctx, StatusRestoreCompleted, "Dump applied")

	r.emit(ctx, StatusReconnecting, "Reconnecting to database")
	if err := o.pool.Reconnect(ctx); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	r.drained = false
	if err := o.pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate record store: %w", err)
	}
	if err := o.backups.ReconcileRecords(ctx, r.records); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to reconcile backup records")
		r.details["reconcile_error"] = err.Error()
	}

	r.emit(ctx, StatusResumingServices, "Resuming services")
	o.maintenance.ResumeAllServices(ctx)
	r.paused = false

	r.emit(ctx, StatusVerifyingRestore, "Inspecting restored database")
	if post, err := o.inspector.Snapshot(ctx, keyTables); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to capture post-restore metadata")
	} else {
		r.details["post_restore"] = post
		if warnings := compareCounts(rec.Metadata.KeyTableRowCounts, post.KeyTableRowCounts); len(warnings) > 0 {
			r.details["warnings"] = warnings
			logging.Ctx(ctx).Warn().Strs("warnings", warnings).Msg("Restored row counts differ from backup metadata")
		}
	}
	return nil
}

// choosePath decides between the online and exclusive paths from the
// decoded dump: the statement header of a plain dump or the table of
// contents of a custom archive.
func (r *run) choosePath(plain string) error {
	f, err := os.Open(plain) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	var header sqlscan.Header
	if r.rec.Format() == backup.FormatSQL {
		header, err = sqlscan.ScanHeader(f)
	} else {
		header, err = sqlscan.ScanArchive(f)
	}
	f.Close() //nolint:errcheck,gosec // Read-only file
	if err != nil {
		return fmt.Errorf("failed to scan dump header: %w", err)
	}

	r.path, r.reason = PathOnline, header.Reason
	if header.RequiresExclusive() {
		r.path = PathExclusive
	}
	if r.path == PathOnline && r.opts.DropDatabase {
		r.path, r.reason = PathExclusive, "drop_database requested"
	}

	r.details["path"] = r.path
	r.details["path_reason"] = r.reason
	r.o.sessions.update(r.id, func(s *Session) { s.Path = r.path })

	logging.Info().
		Str("restore_id", r.id).
		Str("path", string(r.path)).
		Str("path_reason", r.reason).
		Bool("heuristic", true).
		Msg("Restore path selected")
	return nil
}

func preflight(plain string) error {
	f, err := os.Open(plain) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	findings, err := sqlscan.Preflight(f)
	if err != nil {
		return fmt.Errorf("failed to scan dump: %w", err)
	}
	if len(findings) > 0 {
		return fmt.Errorf("%w: %s (%d found)", ErrNonTransactionalStatement, findings[0], len(findings))
	}
	return nil
}

func (r *run) recreate(ctx context.Context, name string) error {
	admin := r.o.admin
	terminated, err := admin.TerminateConnections(ctx, name)
	if err != nil {
		return err
	}
	r.details["terminated_connections"] = terminated
	if err := admin.DropDatabase(ctx, name); err != nil {
		return err
	}
	r.dropped = true
	return admin.CreateDatabase(ctx, name)
}

func (r *run) fail(ctx context.Context, err error, duration time.Duration) {
	r.emit(ctx, StatusFailed, err.Error())

	if r.drained {
		if rerr := r.o.pool.Reconnect(ctx); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).Msg("Failed to reconnect after failed restore")
		} else {
			r.drained = false
		}
	}
	if r.dropped && !r.drained {
		r.repairRecordStore(ctx)
	}
	if r.paused {
		r.o.maintenance.ResumeAllServices(ctx)
		r.paused = false
	}

	r.details["duration"] = duration.String()
	r.record(ctx, audit.StatusFailed, err.Error(), duration)
	r.finishSession(err.Error())

	path := string(r.path)
	metrics.RecordRestore(path, "failed", duration)
	logging.Ctx(ctx).Error().
		Err(err).
		Str("backup_id", r.backupID).
		Str("path", path).
		Dur("duration", duration).
		Msg("Restore failed")
}

// repairRecordStore recreates the record and audit tables in a database
// that was dropped before the restore failed, and puts the pre-restore
// backup records back so the restore can be retried. Errors are logged.
func (r *run) repairRecordStore(ctx context.Context) {
	if err := r.o.pool.Migrate(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to migrate record store after failed restore")
		return
	}
	if err := r.o.backups.ReconcileRecords(ctx, r.records); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to reconcile backup records after failed restore")
		return
	}
	logging.Ctx(ctx).Info().Int("records", len(r.records)).Msg("Record store repaired after failed restore")
}

func (r *run) record(ctx context.Context, status audit.Status, message string, duration time.Duration) {
	r.o.audit.Record(ctx, &audit.Entry{
		ScheduleID:   audit.ScheduleRestore,
		BackupID:     r.backupID,
		Status:       status,
		ErrorMessage: message,
		Metadata: map[string]any{
			"restore_id":  r.id,
			"path":        string(r.path),
			"path_reason": r.reason,
			"user_id":     r.opts.UserID,
			"user_email":  r.opts.UserEmail,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

func (r *run) emit(ctx context.Context, status Status, message string) {
	if p := status.Percent(); p >= 0 {
		r.percent = p
	}
	event := ProgressEvent{
		RestoreID: r.id,
		BackupID:  r.backupID,
		Status:    status,
		Message:   message,
		Percent:   r.percent,
		Timestamp: r.o.now().UTC(),
	}

	r.o.sessions.update(r.id, func(s *Session) {
		s.Status = status
		s.Message = message
		s.Percent = event.Percent
	})

	logging.Ctx(ctx).Debug().
		Str("status", string(status)).
		Int("percent", event.Percent).
		Msg(message)

	for _, obs := range r.o.observerList() {
		obs.RestoreProgress(ctx, event)
	}
}

func (r *run) finishSession(errMsg string) {
	now := r.o.now()
	r.o.sessions.update(r.id, func(s *Session) {
		s.FinishedAt = &now
		s.Error = errMsg
		s.Details = r.details
	})
}

func keyTablesOf(rec *backup.Record) []string {
	if len(rec.Metadata.KeyTableRowCounts) == 0 {
		return nil
	}
	return sortedKeys(rec.Metadata.KeyTableRowCounts)
}

func compareCounts(want, got map[string]int64) []string {
	var warnings []string
	for _, name := range sortedKeys(want) {
		n, ok := got[name]
		switch {
		case !ok:
			warnings = append(warnings, fmt.Sprintf("%s: missing after restore", name))
		case n != want[name]:
			warnings = append(warnings, fmt.Sprintf("%s: expected %d rows, got %d", name, want[name], n))
		}
	}
	return warnings
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
