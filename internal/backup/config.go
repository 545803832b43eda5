// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tomtom215/dbwarden/internal/artifact"
	"github.com/tomtom215/dbwarden/internal/storage"
)

// Config holds all backup-related configuration
type Config struct {
	// Enable backup functionality
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Recurring backups
	Schedules []Schedule `koanf:"schedules" json:"schedules"`

	// Records strictly older than this many days are deleted by retention
	RetentionDays int `koanf:"retention_days" json:"retention_days" validate:"min=1"`

	// Default locations for new backups
	StorageLocations []string `koanf:"storage_locations" json:"storage_locations"`

	// Default dump format (sql, custom)
	DumpFormat DumpFormat `koanf:"dump_format" json:"dump_format" validate:"oneof=sql custom"`

	// Google Drive location
	GoogleDrive storage.DriveConfig `koanf:"google_drive" json:"google_drive"`

	// Encryption settings (optional)
	Encryption EncryptionConfig `koanf:"encryption" json:"encryption"`

	// Allow deep verification (restores into a scratch database)
	DeepVerifyEnabled bool `koanf:"deep_verify_enabled" json:"deep_verify_enabled"`

	// Directory to store backups
	BackupDir string `koanf:"backup_dir" json:"backup_dir" validate:"required"`

	// Compression algorithm (none, gzip, zstd, lz4)
	Compression string `koanf:"compression" json:"compression" validate:"oneof=none gzip zstd lz4"`

	// Compression level, 0 uses the algorithm default
	CompressionLevel int `koanf:"compression_level" json:"compression_level" validate:"min=0,max=22"`

	// Tables whose row counts are recorded and compared by deep verification;
	// empty samples the five largest tables
	KeyTables []string `koanf:"key_tables" json:"key_tables"`

	// Refuse to start a backup with less free space in BackupDir
	MinFreeBytes uint64 `koanf:"min_free_bytes" json:"min_free_bytes"`

	// Source instance identifier embedded in file names; defaults to the hostname
	InstanceID string `koanf:"instance_id" json:"instance_id"`

	// IANA time zone for schedules; empty uses the local zone
	Timezone string `koanf:"timezone" json:"timezone"`
}

// EncryptionConfig defines encryption settings for backups
type EncryptionConfig struct {
	// Enable encryption
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Passphrase the AES-256 key is derived from.
	// This should be loaded from a secure source (env var, vault, etc.)
	Key string `koanf:"key" json:"-"`
}

// MinEncryptionKeyLength is the shortest accepted passphrase.
const MinEncryptionKeyLength = 32

// DefaultConfig returns the default backup configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Schedules:         []Schedule{},
		RetentionDays:     30,
		StorageLocations:  []string{storage.LocationLocal},
		DumpFormat:        FormatCustom,
		DeepVerifyEnabled: true,
		BackupDir:         "/data/backups",
		Compression:       artifact.CompressionNone,
		KeyTables:         []string{},
		MinFreeBytes:      1 << 30,
	}
}

// Validate checks the cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // No validation needed if backups are disabled
	}

	if !filepath.IsAbs(c.BackupDir) {
		return fmt.Errorf("backup_dir must be an absolute path, got: %s", c.BackupDir)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got: %d", c.RetentionDays)
	}
	if !c.DumpFormat.Valid() {
		return fmt.Errorf("dump_format must be one of: sql, custom")
	}
	if !artifact.ValidCompression(c.Compression) {
		return fmt.Errorf("compression must be one of: none, gzip, zstd, lz4")
	}
	if c.Encryption.Enabled && len(c.Encryption.Key) < MinEncryptionKeyLength {
		return fmt.Errorf("encryption key must be at least %d characters", MinEncryptionKeyLength)
	}
	if len(c.StorageLocations) == 0 {
		return fmt.Errorf("storage_locations must not be empty")
	}

	seen := make(map[string]bool, len(c.Schedules))
	for i := range c.Schedules {
		s := &c.Schedules[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedule %d: %w", i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate schedule id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// CodecOptions returns the artifact encoding for new backups.
func (c *Config) CodecOptions() artifact.Options {
	opts := artifact.Options{
		Compression: c.Compression,
		Level:       c.CompressionLevel,
	}
	if c.Encryption.Enabled {
		opts.EncryptionKey = c.Encryption.Key
	}
	return opts
}

// DecryptionKey returns the key used to read encrypted artifacts.
func (c *Config) DecryptionKey() string {
	return c.Encryption.Key
}

// ResolvedInstanceID returns InstanceID or the hostname.
func (c *Config) ResolvedInstanceID() string {
	if c.InstanceID != "" {
		return c.InstanceID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}

// EnsureBackupDir creates the backup directory if it doesn't exist
func (c *Config) EnsureBackupDir() error {
	if err := os.MkdirAll(c.BackupDir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", c.BackupDir, err)
	}
	return nil
}

// Frequency of a schedule
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule is a recurring backup
type Schedule struct {
	// Unique schedule identifier
	ID string `koanf:"id" json:"id" validate:"required"`

	// daily, weekly or monthly
	Frequency Frequency `koanf:"frequency" json:"frequency" validate:"oneof=daily weekly monthly"`

	// Time of day as HH:MM
	Time string `koanf:"time" json:"time" validate:"required"`

	// 0-6, Sunday=0; weekly only
	DayOfWeek *int `koanf:"day_of_week" json:"day_of_week,omitempty"`

	// 1-28; monthly only
	DayOfMonth *int `koanf:"day_of_month" json:"day_of_month,omitempty"`

	// Disabled schedules are not registered
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Locations for this schedule; empty uses the backup defaults
	StorageLocations []string `koanf:"storage_locations" json:"storage_locations,omitempty"`
}

// Validate checks the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, _, err := s.clock(); err != nil {
		return err
	}
	switch s.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return fmt.Errorf("weekly schedule %q requires day_of_week 0-6", s.ID)
		}
	case FrequencyMonthly:
		if s.DayOfMonth == nil || *s.DayOfMonth < 1 || *s.DayOfMonth > 28 {
			return fmt.Errorf("monthly schedule %q requires day_of_month 1-28", s.ID)
		}
	default:
		return fmt.Errorf("schedule %q: frequency must be one of: daily, weekly, monthly", s.ID)
	}
	return nil
}

func (s *Schedule) clock() (hour, minute int, err error) {
	h, m, ok := strings.Cut(s.Time, ":")
	if !ok {
		return 0, 0, fmt.Errorf("schedule %q: time must be HH:MM, got %q", s.ID, s.Time)
	}
	hour, errH := strconv.Atoi(h)
	minute, errM := strconv.Atoi(m)
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule %q: time must be HH:MM, got %q", s.ID, s.Time)
	}
	return hour, minute, nil
}

// CronExpression translates the schedule to a five-field cron expression.
func (s *Schedule) CronExpression() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	hour, minute, _ := s.clock()
	switch s.Frequency {
	case FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", minute, hour, *s.DayOfWeek), nil
	case FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", minute, hour, *s.DayOfMonth), nil
	default:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}
}
