// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package audit

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome of an audited operation.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
	StatusInProgress Status = "in_progress"
)

// Reserved schedule IDs for entries not produced by a configured schedule.
const (
	ScheduleManual  = "manual"
	ScheduleRestore = "restore"
	ScheduleCleanup = "cleanup"
)

// ErrEntryNotFound is returned by Get when no entry has the given ID.
var ErrEntryNotFound = errors.New("audit entry not found")

// Entry is a single audit row.
type Entry struct {
	// ID is a unique identifier (UUID).
	ID string `json:"id"`

	// ScheduleID is the producing schedule or one of the reserved IDs.
	ScheduleID string `json:"schedule_id"`

	// BackupID is the backup involved, empty for cleanup runs.
	BackupID string `json:"backup_id,omitempty"`

	// Status is the terminal outcome.
	Status Status `json:"status"`

	// Timestamp is when the operation finished.
	Timestamp time.Time `json:"timestamp"`

	// ErrorMessage is set for failed and partial outcomes.
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata holds operation-specific details (restore path, deleted ids, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ScheduleID string
	BackupID   string
	Status     Status
	Since      time.Time
	Limit      int
}

func (f *Filter) matches(e *Entry) bool {
	if f.ScheduleID != "" && e.ScheduleID != f.ScheduleID {
		return false
	}
	if f.BackupID != "" && e.BackupID != f.BackupID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Store persists audit entries.
type Store interface {
	// Save persists an entry. ID and Timestamp must be set.
	Save(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}
