// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/storage"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{backup.ErrBackupNotFound, http.StatusNotFound, ErrCodeNotFound},
	{restore.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
	{storage.ErrObjectNotFound, http.StatusNotFound, ErrCodeNotFound},

	{restore.ErrRestoreInProgress, http.StatusConflict, ErrCodeConflict},
	{backup.ErrInvalidTransition, http.StatusConflict, ErrCodeConflict},
	{backup.ErrNotRestorable, http.StatusConflict, ErrCodeConflict},

	{restore.ErrConfirmationRequired, http.StatusPreconditionFailed, ErrCodePreconditionFailed},

	{backup.ErrVerificationFailed, http.StatusUnprocessableEntity, ErrCodeUnprocessable},
	{restore.ErrNonTransactionalStatement, http.StatusUnprocessableEntity, ErrCodeUnprocessable},
	{storage.ErrUnknownLocation, http.StatusUnprocessableEntity, ErrCodeUnprocessable},

	{backup.ErrMaintenanceActive, http.StatusServiceUnavailable, ErrCodeMaintenanceMode},
	{maintenance.ErrMaintenanceModeFailure, http.StatusServiceUnavailable, ErrCodeMaintenanceMode},
	{backup.ErrBackupsDisabled, http.StatusServiceUnavailable, "BACKUPS_DISABLED"},
	{backup.ErrDeepVerifyDisabled, http.StatusServiceUnavailable, "DEEP_VERIFY_DISABLED"},
	{backup.ErrInsufficientSpace, http.StatusServiceUnavailable, "INSUFFICIENT_SPACE"},
	{process.ErrToolUnavailable, http.StatusServiceUnavailable, "TOOL_UNAVAILABLE"},
}

// statusForError returns the HTTP status and error code for err.
func statusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}
