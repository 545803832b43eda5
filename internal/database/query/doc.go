// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package query builds parameterized PostgreSQL WHERE clauses for the
// record and audit stores.
//
// Filters that carry their zero value are skipped, so list endpoints can
// pass optional query parameters straight through:
//
//	wb := query.NewWhereBuilder()
//	wb.AddEqual("schedule_id", filter.ScheduleID)
//	wb.AddEqual("status", string(filter.Status))
//	wb.AddSince("timestamp", filter.Since)
//	where, _ := wb.BuildWithPrefix()
//	sql := selectColumns + where + " ORDER BY timestamp DESC" + wb.Limit(filter.Limit)
//	rows, err := q.Query(ctx, sql, wb.Args()...)
//
// Placeholders are numbered in the order clauses are added. Limit must be
// the last call since it consumes the next number.
package query
