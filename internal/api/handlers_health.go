// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthTimeout bounds the database ping.
const healthTimeout = 3 * time.Second

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status      string  `json:"status"`
	Version     string  `json:"version,omitempty"`
	GoVersion   string  `json:"go_version"`
	Uptime      float64 `json:"uptime_seconds"`
	Database    string  `json:"database"`
	Maintenance bool    `json:"maintenance"`
	Scheduler   string  `json:"scheduler"`
	Events      string  `json:"events"`
	WSClients   int     `json:"websocket_clients"`
}

// Health reports component status. During maintenance the database is
// expected to be unreachable, so it reports "maintenance" with a 200.
//
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:      "ok",
		Version:     h.deps.Version,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(h.startTime).Seconds(),
		Database:    "unknown",
		Maintenance: h.deps.Maintenance.Active(),
		Scheduler:   "disabled",
		Events:      "disabled",
	}

	code := http.StatusOK
	switch {
	case status.Maintenance:
		status.Status = "maintenance"
		status.Database = "maintenance"
	case h.deps.Database != nil:
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := h.deps.Database.Ping(ctx)
		cancel()
		if err != nil {
			status.Status = "degraded"
			status.Database = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status.Database = "connected"
		}
	}

	if h.deps.Schedules != nil {
		status.Scheduler = runningLabel(h.deps.Schedules.Running())
	}
	if h.deps.Events != nil {
		status.Events = runningLabel(h.deps.Events.IsRunning())
	}
	if h.deps.Hub != nil {
		status.WSClients = h.deps.Hub.GetClientCount()
	}

	NewResponseWriter(w, r).Status(code, status)
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
