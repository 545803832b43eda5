// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package metrics provides Prometheus metrics for backups, restores and the API.

All collectors are registered with the default registry through promauto and
exposed at /metrics by the API server:

	curl http://localhost:8420/metrics

# Available Metrics

Backup Metrics:
  - dbwarden_backups_total: Backup runs (counter)
    Labels: type (manual, scheduled), status (completed, uploaded, failed)
  - dbwarden_backup_duration_seconds: Backup duration (histogram)
  - dbwarden_backup_size_bytes: Size of the latest artifact (gauge)
  - dbwarden_uploads_total: Uploads (counter)
    Labels: location, result
  - dbwarden_verifications_total: Verifications (counter)
    Labels: mode (shallow, deep), result (valid, invalid, error)
  - dbwarden_retention_deleted_total: Backups removed by retention (counter)
  - dbwarden_schedule_skipped_total: Overlapping scheduled runs (counter)
    Labels: schedule

Restore Metrics:
  - dbwarden_restores_total: Restores (counter)
    Labels: path (exclusive, online), result
  - dbwarden_restore_duration_seconds: Restore duration (histogram)
  - dbwarden_restore_sessions: Sessions held for polling (gauge)
  - dbwarden_maintenance_mode: 1 while maintenance mode is on (gauge)

Transport Metrics:
  - dbwarden_events_published_total: NATS publishes (counter)
    Labels: topic, result
  - dbwarden_ws_connections: WebSocket clients (gauge)
  - dbwarden_api_requests_total, dbwarden_api_request_duration_seconds
  - dbwarden_circuit_breaker_state: Storage breaker state (gauge)
    Values: 0=closed, 1=half-open, 2=open

# Usage

	start := time.Now()
	rec, err := engine.CreateBackup(ctx, req)
	metrics.RecordBackup("manual", string(rec.Status), time.Since(start), rec.Size)

The backup and restore packages call these helpers directly; nothing needs
to be wired at startup beyond serving promhttp.Handler().
*/
package metrics
