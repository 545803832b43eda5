// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"strings"
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func TestBuildFilename(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		parts FilenameParts
		want  string
	}{
		{
			name:  "custom plain",
			parts: FilenameParts{AppVersion: "2.0.1", EngineMajor: 16, InstanceID: "prod-db", Timestamp: ts, Format: FormatCustom},
			want:  "backup_2.0.1_pg16_prod-db_20260102T020405Z.dump",
		},
		{
			name:  "sql with encoding",
			parts: FilenameParts{AppVersion: "2.0.1", EngineMajor: 15, InstanceID: "db", Timestamp: ts, Format: FormatSQL, EncodingExts: ".gz.enc"},
			want:  "backup_2.0.1_pg15_db_20260102T020405Z.sql.gz.enc",
		},
		{
			name:  "unsafe components",
			parts: FilenameParts{AppVersion: "v1/../x", EngineMajor: 14, InstanceID: "host_name.local", Timestamp: ts, Format: FormatSQL},
			want:  "backup_v1-.-x_pg14_host-name.local_20260102T020405Z.sql",
		},
		{
			name:  "empty components",
			parts: FilenameParts{EngineMajor: 17, Timestamp: ts, Format: FormatSQL},
			want:  "backup_unknown_pg17_unknown_20260102T020405Z.sql",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFilename(tt.parts)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if strings.Contains(got, "..") || strings.Contains(got, "/") {
				t.Errorf("filename %s is not path safe", got)
			}
		})
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want DumpFormat
	}{
		{"backup_x.dump", FormatCustom},
		{"backup_x.dump.zst.enc", FormatCustom},
		{"backup_x.sql.gz", FormatSQL},
		{"backup_x.sql", FormatSQL},
	}

	for _, tt := range tests {
		if got := FormatFromFilename(tt.name); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusCreating, StatusCompleted, true},
		{StatusCreating, StatusFailed, true},
		{StatusCreating, StatusUploading, false},
		{StatusCompleted, StatusUploading, true},
		{StatusUploading, StatusUploaded, true},
		{StatusUploading, StatusCompleted, true},
		{StatusUploaded, StatusUploading, true},
		{StatusFailed, StatusCompleted, false},
		{StatusUploaded, StatusCreating, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestRecordClone(t *testing.T) {
	now := time.Now()
	rec := &Record{
		ID:               "r1",
		CompletedAt:      &now,
		StorageLocations: []string{"local"},
		UploadErrors:     map[string]string{"s3": "denied"},
		Metadata:         Metadata{KeyTableRowCounts: map[string]int64{"t": 1}},
	}
	c := rec.Clone()
	c.StorageLocations[0] = "gcs"
	c.UploadErrors["s3"] = "ok"
	c.Metadata.KeyTableRowCounts["t"] = 2

	if rec.StorageLocations[0] != "local" || rec.UploadErrors["s3"] != "denied" || rec.Metadata.KeyTableRowCounts["t"] != 1 {
		t.Error("expected clone to be independent of the original")
	}
}

func TestScheduleCronExpression(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		want     string
		wantErr  bool
	}{
		{"daily", Schedule{ID: "d", Frequency: FrequencyDaily, Time: "02:30"}, "30 2 * * *", false},
		{"weekly sunday", Schedule{ID: "w", Frequency: FrequencyWeekly, Time: "23:05", DayOfWeek: intPtr(0)}, "5 23 * * 0", false},
		{"monthly", Schedule{ID: "m", Frequency: FrequencyMonthly, Time: "00:00", DayOfMonth: intPtr(28)}, "0 0 28 * *", false},
		{"weekly without day", Schedule{ID: "w", Frequency: FrequencyWeekly, Time: "01:00"}, "", true},
		{"monthly day 31", Schedule{ID: "m", Frequency: FrequencyMonthly, Time: "01:00", DayOfMonth: intPtr(31)}, "", true},
		{"bad time", Schedule{ID: "d", Frequency: FrequencyDaily, Time: "25:00"}, "", true},
		{"unknown frequency", Schedule{ID: "h", Frequency: "hourly", Time: "01:00"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schedule.CronExpression()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.BackupDir = "rel" }, false},
		{"relative dir", func(c *Config) { c.BackupDir = "backups" }, true},
		{"zero retention", func(c *Config) { c.RetentionDays = 0 }, true},
		{"bad compression", func(c *Config) { c.Compression = "brotli" }, true},
		{"short key", func(c *Config) { c.Encryption = EncryptionConfig{Enabled: true, Key: "short"} }, true},
		{"duplicate schedules", func(c *Config) {
			c.Schedules = []Schedule{
				{ID: "a", Frequency: FrequencyDaily, Time: "01:00"},
				{ID: "a", Frequency: FrequencyDaily, Time: "02:00"},
			}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
