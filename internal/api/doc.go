// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package api serves the DBWarden HTTP API with chi.

# Endpoints

	GET    /api/v1/health
	GET    /api/v1/backups
	POST   /api/v1/backups
	GET    /api/v1/backups/{id}
	DELETE /api/v1/backups/{id}
	POST   /api/v1/backups/{id}/verify
	POST   /api/v1/backups/{id}/verify/deep
	POST   /api/v1/backups/{id}/restore        202 with restore_id
	GET    /api/v1/restores
	GET    /api/v1/restores/{restoreID}
	DELETE /api/v1/restores/{restoreID}
	GET    /api/v1/maintenance
	GET    /api/v1/schedules
	POST   /api/v1/schedules/reload
	POST   /api/v1/retention/run
	GET    /api/v1/audit
	GET    /ws
	GET    /metrics

# Responses

Every JSON body uses the APIResponse envelope. Errors map to status codes
by sentinel: not found is 404, a running restore is 409, a missing
confirmation is 412, a failed verification or rejected dump is 422, and
maintenance mode, disabled features and missing client tools are 503.

# Maintenance Mode

While a restore holds maintenance mode, mutating requests receive 503 with
Retry-After. Reads and the restore session endpoints stay available.
*/
package api
