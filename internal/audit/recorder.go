// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// saveTimeout bounds a single store write.
const saveTimeout = 5 * time.Second

// Recorder fills in IDs and timestamps and writes entries to a Store.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder for store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store {
	return r.store
}

// Record persists entry. Errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}

	// The caller's context may already be cancelled when a restore fails.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := r.store.Save(saveCtx, entry); err != nil {
		logging.Error().
			Err(err).
			Str("audit_id", entry.ID).
			Str("schedule_id", entry.ScheduleID).
			Str("backup_id", entry.BackupID).
			Str("status", string(entry.Status)).
			Msg("Failed to save audit entry")
		return
	}

	logging.Debug().
		Str("audit_id", entry.ID).
		Str("schedule_id", entry.ScheduleID).
		Str("backup_id", entry.BackupID).
		Str("status", string(entry.Status)).
		Msg("Audit entry recorded")
}
