// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/dbwarden/internal/restore"
)

// RestoreAccepted is the 202 body of a started restore.
type RestoreAccepted struct {
	RestoreID string `json:"restore_id"`
	BackupID  string `json:"backup_id"`
	StatusURL string `json:"status_url"`
}

// StartRestore starts a restore in the background. Progress is polled at
// the returned status URL or pushed over the WebSocket.
//
// POST /api/v1/backups/{id}/restore
func (h *Handler) StartRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rw := NewResponseWriter(w, r)
	backupID := chi.URLParam(r, "id")
	id, err := h.deps.Restores.StartRestore(r.Context(), backupID, restore.Options{
		UserID:           req.UserID,
		UserEmail:        req.UserEmail,
		ConfirmationText: req.ConfirmationText,
		DropDatabase:     req.DropDatabase,
	})
	if err != nil {
		status, code := statusForError(err)
		rw.ErrorWithDetails(status, code, err.Error(), map[string]string{"restore_id": id})
		return
	}

	statusURL := "/api/v1/restores/" + id
	rw.Accepted(statusURL, RestoreAccepted{
		RestoreID: id,
		BackupID:  backupID,
		StatusURL: statusURL,
	})
}

// ListRestores returns every retained restore session, newest first.
//
// GET /api/v1/restores
func (h *Handler) ListRestores(w http.ResponseWriter, r *http.Request) {
	sessions := h.deps.Restores.Sessions().List()
	NewResponseWriter(w, r).List(sessions, len(sessions))
}

// GetRestore returns the progress of one restore.
//
// GET /api/v1/restores/{restoreID}
func (h *Handler) GetRestore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sess, err := h.deps.Restores.Sessions().Get(chi.URLParam(r, "restoreID"))
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Success(sess)
}

// DeleteRestore removes a finished restore session.
//
// DELETE /api/v1/restores/{restoreID}
func (h *Handler) DeleteRestore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.deps.Restores.Sessions().Delete(chi.URLParam(r, "restoreID")); err != nil {
		rw.Err(err)
		return
	}
	rw.NoContent()
}

// Maintenance returns the maintenance coordinator state.
//
// GET /api/v1/maintenance
func (h *Handler) Maintenance(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.deps.Maintenance.State())
}
