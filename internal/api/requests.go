// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// CreateBackupRequest is the body of POST /api/v1/backups.
type CreateBackupRequest struct {
	Description      string   `json:"description" validate:"max=500"`
	StorageLocations []string `json:"storage_locations" validate:"omitempty,dive,storage_location"`
	DumpFormat       string   `json:"dump_format" validate:"omitempty,oneof=sql custom"`
}

func (r CreateBackupRequest) toCreateRequest() backup.CreateRequest {
	return backup.CreateRequest{
		Type:             backup.TypeManual,
		Description:      r.Description,
		StorageLocations: r.StorageLocations,
		DumpFormat:       backup.DumpFormat(r.DumpFormat),
	}
}

// RestoreRequest is the body of POST /api/v1/backups/{id}/restore.
type RestoreRequest struct {
	ConfirmationText string `json:"confirmation_text"`
	DropDatabase     bool   `json:"drop_database"`
	UserID           string `json:"user_id" validate:"max=200"`
	UserEmail        string `json:"user_email" validate:"omitempty,email"`
}

// decodeJSON decodes an optional JSON body into v and validates it. An
// empty body leaves v at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	rw := NewResponseWriter(w, r)

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return false
	}

	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
