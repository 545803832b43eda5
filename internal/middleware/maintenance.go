// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
maintenance.go - Maintenance Mode Guard

While a restore holds maintenance mode the database may be dropped or only
partially loaded. Read requests still pass so clients can poll restore
progress; mutating requests get 503 with Retry-After.
*/

//nolint:staticcheck // File documentation, not package doc
package middleware

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// MaintenanceRetryAfter is the Retry-After value, in seconds, sent with 503s.
const MaintenanceRetryAfter = "30"

// MaintenanceState reports whether maintenance mode is on.
type MaintenanceState interface {
	Active() bool
}

type maintenanceBody struct {
	Success bool             `json:"success"`
	Error   maintenanceError `json:"error"`
}

type maintenanceError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// MaintenanceGuard rejects mutating requests while maintenance mode is on.
// Requests for which exempt returns true always pass; exempt may be nil.
func MaintenanceGuard(state MaintenanceState, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isReadOnly(r.Method) || !state.Active() || (exempt != nil && exempt(r)) {
				next.ServeHTTP(w, r)
				return
			}

			logging.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Rejected request during maintenance mode")

			body, err := json.Marshal(maintenanceBody{
				Error: maintenanceError{
					Code:      "MAINTENANCE_MODE",
					Message:   "A restore is in progress; try again later",
					RequestID: GetRequestID(r.Context()),
				},
			})
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", MaintenanceRetryAfter)
			w.WriteHeader(http.StatusServiceUnavailable)
			//nolint:errcheck // Best effort write
			w.Write(body)
		})
	}
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
