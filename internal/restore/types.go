// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package restore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRestoreInProgress is returned when another restore is running.
	ErrRestoreInProgress = errors.New("a restore is already in progress")

	// ErrConfirmationRequired is returned when the confirmation text is
	// missing or wrong.
	ErrConfirmationRequired = errors.New("confirmation text must be " + ConfirmationText)

	// ErrNonTransactionalStatement is returned when the online path finds a
	// statement that cannot run inside a transaction.
	ErrNonTransactionalStatement = errors.New("dump contains a non-transactional statement")

	// ErrRestoreFailed wraps every failure after a restore has started.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrSessionNotFound is returned for unknown or expired restore IDs.
	ErrSessionNotFound = errors.New("restore session not found")
)

// ConfirmationText must be supplied when confirmation is required.
const ConfirmationText = "RESTORE"

// Status is a step of the restore state machine.
type Status string

const (
	StatusStarted          Status = "started"
	StatusMaintenanceMode  Status = "maintenance_mode"
	StatusDownloading      Status = "downloading"
	StatusFileReady        Status = "file_ready"
	StatusVerifying        Status = "verifying"
	StatusPreparing        Status = "preparing"
	StatusDroppingDatabase Status = "dropping_database"
	StatusOnlineRestore    Status = "online_restore"
	StatusRestoring        Status = "restoring"
	StatusRestoreCompleted Status = "restore_completed"
	StatusReconnecting     Status = "reconnecting"
	StatusResumingServices Status = "resuming_services"
	StatusVerifyingRestore Status = "verifying_restore"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

var statusPercent = map[Status]int{
	StatusStarted:          0,
	StatusMaintenanceMode:  5,
	StatusDownloading:      10,
	StatusFileReady:        15,
	StatusVerifying:        20,
	StatusPreparing:        30,
	StatusDroppingDatabase: 40,
	StatusOnlineRestore:    40,
	StatusRestoring:        50,
	StatusRestoreCompleted: 80,
	StatusReconnecting:     85,
	StatusResumingServices: 90,
	StatusVerifyingRestore: 95,
	StatusCompleted:        100,
}

// Percent returns the progress percentage of s. Failed has no fixed
// percentage and reports -1.
func (s Status) Percent() int {
	if p, ok := statusPercent[s]; ok {
		return p
	}
	return -1
}

// Terminal reports whether s ends a restore.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Path is how the dump is applied.
type Path string

const (
	// PathOnline applies the dump in one transaction while the database stays up
	PathOnline Path = "online"

	// PathExclusive drops and recreates the database first
	PathExclusive Path = "exclusive"
)

// Options are supplied by the caller of a restore.
type Options struct {
	UserID           string `json:"user_id,omitempty"`
	UserEmail        string `json:"user_email,omitempty"`
	ConfirmationText string `json:"confirmation_text,omitempty"`

	// Force the exclusive path even when the dump does not require it
	DropDatabase bool `json:"drop_database,omitempty"`
}

// Result is the outcome of a restore. It is never nil.
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RestoreID string         `json:"restore_id"`
}

// ProgressEvent is emitted on every state transition.
type ProgressEvent struct {
	RestoreID string    `json:"restore_id"`
	BackupID  string    `json:"backup_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives progress events. Implementations must not block.
type Observer interface {
	RestoreProgress(ctx context.Context, event ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event ProgressEvent)

// RestoreProgress implements Observer.
func (f ObserverFunc) RestoreProgress(ctx context.Context, event ProgressEvent) { f(ctx, event) }

// Config holds restore settings
type Config struct {
	// Require ConfirmationText on every restore
	RequireConfirmation bool `koanf:"require_confirmation" json:"require_confirmation"`

	// Finished sessions are kept this long
	SessionTTL time.Duration `koanf:"session_ttl" json:"session_ttl" validate:"min=1m"`

	// Upper bound on retained sessions
	MaxSessions int `koanf:"max_sessions" json:"max_sessions" validate:"min=1"`

	// Wait after pausing services before draining the pool
	GracePeriod time.Duration `koanf:"grace_period" json:"grace_period" validate:"min=0"`

	// Longest wait for in-flight backups before giving up
	OperationWaitTimeout time.Duration `koanf:"operation_wait_timeout" json:"operation_wait_timeout" validate:"min=1s"`
}

// DefaultConfig returns the default restore configuration.
func DefaultConfig() Config {
	return Config{
		RequireConfirmation:  true,
		SessionTTL:           time.Hour,
		MaxSessions:          100,
		GracePeriod:          2 * time.Second,
		OperationWaitTimeout: 30 * time.Minute,
	}
}
