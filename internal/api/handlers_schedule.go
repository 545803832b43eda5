// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/logging"
)

// ScheduleStatus is the body of GET /api/v1/schedules.
type ScheduleStatus struct {
	Running bool        `json:"running"`
	Entries interface{} `json:"entries"`
}

// ListSchedules returns the registered cron entries with their next runs.
//
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Schedules == nil {
		rw.ServiceUnavailable("Scheduler is not available")
		return
	}
	rw.Success(ScheduleStatus{
		Running: h.deps.Schedules.Running(),
		Entries: h.deps.Schedules.Entries(),
	})
}

// ReloadSchedules re-registers schedules from the current configuration.
//
// POST /api/v1/schedules/reload
func (h *Handler) ReloadSchedules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Schedules == nil {
		rw.ServiceUnavailable("Scheduler is not available")
		return
	}
	if err := h.deps.Schedules.Reload(r.Context()); err != nil {
		rw.Err(err)
		return
	}
	logging.Ctx(r.Context()).Info().Msg("Schedules reloaded through the API")
	rw.Success(ScheduleStatus{
		Running: h.deps.Schedules.Running(),
		Entries: h.deps.Schedules.Entries(),
	})
}

// RunRetention deletes backups older than the retention window now.
//
// POST /api/v1/retention/run
func (h *Handler) RunRetention(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Schedules == nil {
		rw.ServiceUnavailable("Scheduler is not available")
		return
	}
	summary, err := h.deps.Schedules.RunRetention(r.Context())
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Success(summary)
}

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// ListAudit returns audit entries, newest first. Query parameters:
// schedule_id, backup_id, status, since (RFC 3339) and limit.
//
// GET /api/v1/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Audit == nil {
		rw.ServiceUnavailable("Audit log is not available")
		return
	}

	filter, msg := parseAuditFilter(r)
	if msg != "" {
		rw.BadRequest(msg)
		return
	}

	entries, err := h.deps.Audit.List(r.Context(), filter)
	if err != nil {
		rw.Err(err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	rw.List(entries, len(entries))
}

func parseAuditFilter(r *http.Request) (audit.Filter, string) {
	q := r.URL.Query()
	filter := audit.Filter{
		ScheduleID: q.Get("schedule_id"),
		BackupID:   q.Get("backup_id"),
		Status:     audit.Status(q.Get("status")),
		Limit:      defaultAuditLimit,
	}

	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, "since must be an RFC 3339 timestamp"
		}
		filter.Since = since
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			return filter, "limit must be between 1 and " + strconv.Itoa(maxAuditLimit)
		}
		filter.Limit = limit
	}
	return filter, ""
}
