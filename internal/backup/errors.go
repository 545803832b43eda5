// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import "errors"

var (
	// ErrBackupNotFound is returned when no record has the requested ID.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrVerificationFailed is returned when an artifact fails size,
	// checksum or format checks.
	ErrVerificationFailed = errors.New("backup verification failed")

	// ErrMaintenanceActive is returned when a backup is requested while
	// maintenance mode is on.
	ErrMaintenanceActive = errors.New("maintenance mode is active")

	// ErrDeepVerifyDisabled is returned when deep verification is turned off.
	ErrDeepVerifyDisabled = errors.New("deep verification is disabled")

	// ErrBackupsDisabled is returned when backups are turned off.
	ErrBackupsDisabled = errors.New("backups are disabled")

	// ErrInsufficientSpace is returned when the backup directory has less
	// free space than min_free_bytes.
	ErrInsufficientSpace = errors.New("insufficient free disk space")

	// ErrNotRestorable is returned for records whose artifact is incomplete.
	ErrNotRestorable = errors.New("backup is not in a restorable state")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid backup status transition")
)
