// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/storage"
)

const testDatabaseURL = "postgres://app:secret@db:5432/appdb?sslmode=disable"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.Port != 8470 {
		t.Errorf("expected port 8470, got %d", cfg.Server.Port)
	}
	if cfg.Backup.RetentionDays != 30 {
		t.Errorf("expected 30 retention days, got %d", cfg.Backup.RetentionDays)
	}
	if len(cfg.Backup.StorageLocations) != 1 || cfg.Backup.StorageLocations[0] != storage.LocationLocal {
		t.Errorf("expected [local], got %v", cfg.Backup.StorageLocations)
	}
	if cfg.Restore.SessionTTL <= 0 {
		t.Errorf("expected positive session ttl, got %v", cfg.Restore.SessionTTL)
	}
	if cfg.Records.Store != RecordStorePostgres {
		t.Errorf("expected postgres record store, got %s", cfg.Records.Store)
	}
	if cfg.Events.Enabled {
		t.Error("expected events disabled by default")
	}
	if cfg.Database.URL != testDatabaseURL {
		t.Errorf("expected database url from env, got %q", cfg.Database.URL)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadFrom("")
	if err == nil {
		t.Fatal("expected error without a database url")
	}
	if !strings.Contains(err.Error(), "URL is required") {
		t.Errorf("expected error to name the URL field, got %v", err)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
database:
  url: postgres://file@db/filedb
backup:
  retention_days: 14
  storage_locations: [local, s3]
  schedules:
    - id: nightly
      frequency: daily
      time: "02:30"
      enabled: true
    - id: weekly
      frequency: weekly
      time: "04:00"
      day_of_week: 0
      enabled: true
      storage_locations: [s3]
storage:
  s3:
    enabled: true
    bucket: backups
    region: eu-west-1
logging:
  level: debug
`)

	t.Setenv("DATABASE_URL", testDatabaseURL)
	t.Setenv("BACKUP_RETENTION_DAYS", "7")
	t.Setenv("BACKUP_KEY_TABLES", "public.users, public.orders,")
	t.Setenv("RESTORE_SESSION_TTL", "2h")
	t.Setenv("UNMAPPED_SETTING", "ignored")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Database.URL != testDatabaseURL {
		t.Errorf("expected env to override file database url, got %q", cfg.Database.URL)
	}
	if cfg.Backup.RetentionDays != 7 {
		t.Errorf("expected retention 7 from env, got %d", cfg.Backup.RetentionDays)
	}
	if got := cfg.Backup.KeyTables; len(got) != 2 || got[0] != "public.users" || got[1] != "public.orders" {
		t.Errorf("expected key tables split from env, got %v", got)
	}
	if cfg.Restore.SessionTTL != 2*time.Hour {
		t.Errorf("expected 2h session ttl, got %v", cfg.Restore.SessionTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level from file, got %s", cfg.Logging.Level)
	}
	if !cfg.Storage.S3.Enabled || cfg.Storage.S3.Bucket != "backups" {
		t.Errorf("expected s3 from file, got %+v", cfg.Storage.S3)
	}
	if cfg.Storage.S3.Prefix != "backups/" {
		t.Errorf("expected default s3 prefix kept, got %q", cfg.Storage.S3.Prefix)
	}

	if len(cfg.Backup.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(cfg.Backup.Schedules))
	}
	weekly := cfg.Backup.Schedules[1]
	if weekly.Frequency != backup.FrequencyWeekly || weekly.DayOfWeek == nil || *weekly.DayOfWeek != 0 {
		t.Errorf("unexpected weekly schedule %+v", weekly)
	}
	if len(weekly.StorageLocations) != 1 || weekly.StorageLocations[0] != storage.LocationS3 {
		t.Errorf("expected schedule locations [s3], got %v", weekly.StorageLocations)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)
	path := writeConfigFile(t, "backup: [unclosed\n")

	if _, err := LoadFrom(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindConfigFile(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: warn\n")

	t.Setenv(ConfigPathEnvVar, path)
	if got := FindConfigFile(); got != path {
		t.Errorf("expected %s, got %s", path, got)
	}

	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	if got := FindConfigFile(); got != "" && !strings.HasPrefix(got, "/etc/dbwarden/") {
		t.Errorf("expected no config file, got %s", got)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"DATABASE_URL", "database.url"},
		{"BACKUP_DIR", "backup.backup_dir"},
		{"LOG_LEVEL", "logging.level"},
		{"S3_SECRET_ACCESS_KEY", "storage.s3.secret_access_key"},
		{"GOOGLE_DRIVE_FOLDER_ID", "backup.google_drive.folder_id"},
		{"NATS_URL", "events.url"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.key); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.want, got)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b", []string{"a", "b"}},
		{" a , ,b ", []string{"a", "b"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
			}
		}
	}
}
