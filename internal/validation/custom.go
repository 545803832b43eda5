// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package validation

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/dbwarden/internal/storage"
)

// validateClock accepts HH:MM with a 24-hour clock.
func validateClock(fl validator.FieldLevel) bool {
	h, m, ok := strings.Cut(fl.Field().String(), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return false
	}
	hour, errH := strconv.Atoi(h)
	minute, errM := strconv.Atoi(m)
	return errH == nil && errM == nil && hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// validateStorageLocation accepts the known storage location names.
func validateStorageLocation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case storage.LocationLocal, storage.LocationS3, storage.LocationGCS,
		storage.LocationAzure, storage.LocationGoogleDrive:
		return true
	}
	return false
}
