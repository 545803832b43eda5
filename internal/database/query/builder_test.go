// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package query

import (
	"testing"
	"time"
)

func TestWhereBuilderEmpty(t *testing.T) {
	wb := NewWhereBuilder()
	where, args := wb.Build()
	if where != "1=1" || len(args) != 0 {
		t.Errorf("expected 1=1 with no args, got %q %v", where, args)
	}
	prefixed, _ := wb.BuildWithPrefix()
	if prefixed != "" {
		t.Errorf("expected empty prefix clause, got %q", prefixed)
	}
	if !wb.IsEmpty() {
		t.Error("expected builder to be empty")
	}
}

func TestWhereBuilderNumbering(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	wb := NewWhereBuilder().
		AddEqual("schedule_id", "nightly").
		AddEqual("backup_id", "").
		AddSince("timestamp", since).
		AddIn("status", []string{"failed", "partial"}).
		AddClause("size > ? AND size < ?", 10, 20)

	where, args := wb.BuildWithPrefix()
	want := " WHERE schedule_id = $1 AND timestamp >= $2 AND status = ANY($3) AND size > $4 AND size < $5"
	if where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 5 || args[0] != "nightly" || args[1] != since {
		t.Errorf("unexpected args %v", args)
	}
	if wb.Count() != 4 {
		t.Errorf("expected 4 clauses, got %d", wb.Count())
	}

	if limit := wb.Limit(50); limit != " LIMIT $6" {
		t.Errorf("expected LIMIT $6, got %q", limit)
	}
	if len(wb.Args()) != 6 || wb.Args()[5] != 50 {
		t.Errorf("expected limit bound last, got %v", wb.Args())
	}
}

func TestWhereBuilderSkipsZeroValues(t *testing.T) {
	wb := NewWhereBuilder().
		AddEqual("backup_id", "").
		AddSince("timestamp", time.Time{}).
		AddIn("status", nil)

	if !wb.IsEmpty() {
		t.Errorf("expected zero values skipped, got %d clauses", wb.Count())
	}
	if limit := wb.Limit(0); limit != "" {
		t.Errorf("expected no limit, got %q", limit)
	}
}
