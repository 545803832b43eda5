// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/dbwarden/internal/backup"
)

// ListBackups returns every backup record, newest first. The optional
// status query parameter filters by status.
//
// GET /api/v1/backups
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	records, err := h.deps.Backups.ListBackups(r.Context())
	if err != nil {
		rw.Err(err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []*backup.Record{}
	}
	rw.List(records, len(records))
}

// CreateBackup runs a manual backup and returns its record. Upload failures
// do not fail the request; they are reported in upload_errors.
//
// POST /api/v1/backups
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req CreateBackupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rw := NewResponseWriter(w, r)
	rec, err := h.deps.Backups.CreateBackup(r.Context(), req.toCreateRequest())
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Status(http.StatusCreated, rec)
}

// GetBackup returns one backup record.
//
// GET /api/v1/backups/{id}
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rec, err := h.deps.Backups.GetBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Success(rec)
}

// DeleteBackup removes a backup from every location and deletes its record.
//
// DELETE /api/v1/backups/{id}
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.deps.Backups.DeleteBackup(r.Context(), chi.URLParam(r, "id")); err != nil {
		rw.Err(err)
		return
	}
	rw.NoContent()
}

// VerifyBackup checks the artifact's checksum and archive structure.
// An invalid backup is a 200 with valid=false.
//
// POST /api/v1/backups/{id}/verify
func (h *Handler) VerifyBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	res, err := h.deps.Verifier.VerifyBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Success(res)
}

// VerifyBackupDeep restores the backup into a scratch database and compares
// key-table row counts.
//
// POST /api/v1/backups/{id}/verify/deep
func (h *Handler) VerifyBackupDeep(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	res, err := h.deps.Verifier.VerifyDeep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Success(res)
}
