// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: reuses or generates X-Request-ID and seeds the logging context
  - PrometheusMetrics: request counters, latency and in-flight gauge, labelled
    by chi route pattern
  - SecurityHeaders: nosniff, frame denial, no-store and HSTS over HTTPS
  - MaintenanceGuard: 503 for mutating requests while a restore holds
    maintenance mode

All middleware has the func(http.Handler) http.Handler shape used by chi:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.MaintenanceGuard(coordinator, nil))
*/
package middleware
