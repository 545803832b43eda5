// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package validation validates configuration and API request structs with
// go-playground/validator v10.
//
// A single validator instance is shared so struct metadata is cached once.
// Field names in errors are taken from json tags, so messages match what API
// clients and config authors see. Two custom tags are registered:
//
//   - clock: a time of day as HH:MM (schedule times)
//   - storage_location: local, s3, gcs, azure or google_drive
//
// Example:
//
//	type RestoreRequest struct {
//	    ConfirmationText string `json:"confirmation_text" validate:"required"`
//	    Locations        []string `json:"storage_locations" validate:"dive,storage_location"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
package validation
