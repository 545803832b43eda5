// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/storage"
)

func seedRecord(t *testing.T, env *testEnv, id string, age time.Duration, locations ...string) *Record {
	t.Helper()
	rec := &Record{
		ID:               id,
		Filename:         "backup_" + id + ".sql",
		Type:             TypeScheduled,
		CreatedAt:        testClock.Add(-age),
		Status:           StatusCompleted,
		StorageLocations: append([]string{storage.LocationLocal}, locations...),
	}
	if err := os.WriteFile(filepath.Join(env.dir, rec.Filename), plainDump, 0o600); err != nil {
		t.Fatal(err)
	}
	for _, loc := range locations {
		if loc == storage.LocationS3 {
			env.s3.objects[rec.Filename] = plainDump
		}
	}
	if err := env.store.Save(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestCleanupExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	day := 24 * time.Hour

	seedRecord(t, env, "today", 0)
	seedRecord(t, env, "day29", 29*day)
	seedRecord(t, env, "day30", 30*day)
	old := seedRecord(t, env, "day31", 31*day, storage.LocationS3)

	summary, err := env.engine.CleanupExpired(context.Background(), 30)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}

	if len(summary.Deleted) != 1 || summary.Deleted[0] != "day31" {
		t.Errorf("expected only day31 deleted, got %v", summary.Deleted)
	}
	if !summary.Cutoff.Equal(testClock.Add(-30 * day)) {
		t.Errorf("expected cutoff %v, got %v", testClock.Add(-30*day), summary.Cutoff)
	}
	if _, err := os.Stat(filepath.Join(env.dir, old.Filename)); !os.IsNotExist(err) {
		t.Error("expected expired artifact removed")
	}
	if env.s3.has(old.Filename) {
		t.Error("expected expired remote copy removed")
	}

	records, _ := env.store.List(context.Background())
	if len(records) != 3 {
		t.Errorf("expected 3 remaining records, got %d", len(records))
	}

	e := env.audit.last()
	if e == nil || e.ScheduleID != audit.ScheduleCleanup || e.Status != audit.StatusSuccess {
		t.Errorf("expected cleanup success audit entry, got %+v", e)
	}
}

func TestCleanupExpiredBestEffort(t *testing.T) {
	env := newTestEnv(t, nil)
	day := 24 * time.Hour

	seedRecord(t, env, "a", 40*day, storage.LocationS3)
	seedRecord(t, env, "b", 50*day)
	env.s3.deleteErr = errors.New("throttled")

	summary, err := env.engine.CleanupExpired(context.Background(), 30)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if len(summary.Deleted) != 1 || summary.Deleted[0] != "b" {
		t.Errorf("expected b deleted, got %v", summary.Deleted)
	}
	if _, ok := summary.Errors["a"]; !ok {
		t.Errorf("expected error for a, got %v", summary.Errors)
	}
	if e := env.audit.last(); e == nil || e.Status != audit.StatusPartial {
		t.Errorf("expected partial audit entry, got %+v", e)
	}
}

func TestCleanupExpiredUsesConfiguredRetention(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RetentionDays = 7 })
	seedRecord(t, env, "week", 8*24*time.Hour)

	summary, err := env.engine.CleanupExpired(context.Background(), 0)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if summary.RetentionDays != 7 || len(summary.Deleted) != 1 {
		t.Errorf("expected 7-day retention deleting 1, got %d days %v", summary.RetentionDays, summary.Deleted)
	}
}
