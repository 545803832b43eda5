// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/events"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/storage"
	"github.com/tomtom215/dbwarden/internal/supervisor"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dbwarden/config.yaml",
	"/etc/dbwarden/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8470,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,

			HeavyRateLimitRequests: 6,
		},
		Database: DatabaseConfig{
			AdminDatabase:     "postgres",
			MaxConns:          10,
			MinConns:          1,
			MaxConnLifetime:   time.Hour,
			HealthCheckPeriod: time.Minute,
			MigrateOnStart:    true,
		},
		Backup: backup.DefaultConfig(),
		Storage: storage.Config{
			S3:      storage.S3Config{Prefix: "backups/"},
			GCS:     storage.GCSConfig{Prefix: "backups/"},
			Azure:   storage.AzureConfig{Container: "backups"},
			Breaker: storage.DefaultBreakerConfig(),
		},
		Restore: restore.DefaultConfig(),
		Events:  events.DefaultConfig(),
		Records: RecordsConfig{
			Store:      RecordStorePostgres,
			BadgerPath: "/data/records",
		},
		Tools: process.ToolPaths{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Load reads configuration from the first config file found (see
// FindConfigFile) and the environment.
func Load() (*Config, error) {
	return LoadFrom(FindConfigFile())
}

// LoadFrom layers defaults, the YAML file at path (skipped when empty) and
// environment variables, then validates the result.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// DATABASE_URL -> database.url
	// BACKUP_RETENTION_DAYS -> backup.retention_days
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns CONFIG_PATH when it exists, otherwise the first of
// DefaultConfigPaths that exists, or "" when there is none.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"backup.storage_locations",
	"backup.key_tables",
}

// processSliceFields converts comma-separated string values to slices.
// Environment variables can only carry strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			continue
		}
		trimmed := splitList(strVal)
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",

	// Database
	"database_url":                 "database.url",
	"database_admin_database":      "database.admin_database",
	"database_max_conns":           "database.max_conns",
	"database_min_conns":           "database.min_conns",
	"database_max_conn_lifetime":   "database.max_conn_lifetime",
	"database_health_check_period": "database.health_check_period",
	"database_migrate_on_start":    "database.migrate_on_start",

	// Backup
	"backup_enabled":             "backup.enabled",
	"backup_dir":                 "backup.backup_dir",
	"backup_retention_days":      "backup.retention_days",
	"backup_storage_locations":   "backup.storage_locations",
	"backup_dump_format":         "backup.dump_format",
	"backup_compression":         "backup.compression",
	"backup_compression_level":   "backup.compression_level",
	"backup_encryption_enabled":  "backup.encryption.enabled",
	"backup_encryption_key":      "backup.encryption.key",
	"backup_deep_verify_enabled": "backup.deep_verify_enabled",
	"backup_key_tables":          "backup.key_tables",
	"backup_min_free_bytes":      "backup.min_free_bytes",
	"backup_instance_id":         "backup.instance_id",
	"backup_timezone":            "backup.timezone",

	// Google Drive (configured with the backup section)
	"google_drive_enabled":     "backup.google_drive.enabled",
	"google_drive_folder_id":   "backup.google_drive.folder_id",
	"google_drive_credentials": "backup.google_drive.credentials",

	// S3
	"s3_enabled":           "storage.s3.enabled",
	"s3_bucket":            "storage.s3.bucket",
	"s3_region":            "storage.s3.region",
	"s3_prefix":            "storage.s3.prefix",
	"s3_endpoint":          "storage.s3.endpoint",
	"s3_access_key_id":     "storage.s3.access_key_id",
	"s3_secret_access_key": "storage.s3.secret_access_key",
	"s3_force_path_style":  "storage.s3.force_path_style",

	// GCS
	"gcs_enabled":     "storage.gcs.enabled",
	"gcs_bucket":      "storage.gcs.bucket",
	"gcs_prefix":      "storage.gcs.prefix",
	"gcs_credentials": "storage.gcs.credentials",

	// Azure Blob
	"azure_enabled":     "storage.azure.enabled",
	"azure_account":     "storage.azure.account",
	"azure_account_key": "storage.azure.account_key",
	"azure_container":   "storage.azure.container",
	"azure_prefix":      "storage.azure.prefix",
	"azure_service_url": "storage.azure.service_url",

	// Upload breaker
	"storage_breaker_failure_threshold": "storage.breaker.failure_threshold",
	"storage_breaker_timeout":           "storage.breaker.timeout",

	// Restore
	"restore_require_confirmation":   "restore.require_confirmation",
	"restore_session_ttl":            "restore.session_ttl",
	"restore_max_sessions":           "restore.max_sessions",
	"restore_grace_period":           "restore.grace_period",
	"restore_operation_wait_timeout": "restore.operation_wait_timeout",

	// Events (NATS)
	"nats_enabled":         "events.enabled",
	"nats_url":             "events.url",
	"nats_embedded_server": "events.embedded_server",
	"nats_host":            "events.host",
	"nats_port":            "events.port",
	"nats_store_dir":       "events.store_dir",
	"nats_stream":          "events.stream",
	"nats_max_age":         "events.max_age",

	// Records
	"records_store":       "records.store",
	"records_badger_path": "records.badger_path",

	// Tools
	"pg_dump_path":    "tools.pg_dump",
	"pg_restore_path": "tools.pg_restore",
	"psql_path":       "tools.psql",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
