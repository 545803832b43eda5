// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/events"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/storage"
	"github.com/tomtom215/dbwarden/internal/supervisor"
	"github.com/tomtom215/dbwarden/internal/validation"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig          `koanf:"server" json:"server"`
	Database   DatabaseConfig        `koanf:"database" json:"database"`
	Backup     backup.Config         `koanf:"backup" json:"backup"`
	Storage    storage.Config        `koanf:"storage" json:"storage"`
	Restore    restore.Config        `koanf:"restore" json:"restore"`
	Events     events.Config         `koanf:"events" json:"events"`
	Records    RecordsConfig         `koanf:"records" json:"records"`
	Tools      process.ToolPaths     `koanf:"tools" json:"tools"`
	Logging    LoggingConfig         `koanf:"logging" json:"logging"`
	Supervisor supervisor.TreeConfig `koanf:"supervisor" json:"supervisor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"min=1s"`

	// Allowed CORS origins; empty disables CORS headers
	CORSOrigins []string `koanf:"cors_origins" json:"cors_origins"`

	// Requests per RateLimitWindow per client IP; 0 disables rate limiting
	RateLimitRequests int           `koanf:"rate_limit_requests" json:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" json:"rate_limit_window"`

	// Per-endpoint budget within RateLimitWindow for creating backups,
	// starting restores and deep verification; 0 disables it
	HeavyRateLimitRequests int `koanf:"heavy_rate_limit_requests" json:"heavy_rate_limit_requests" validate:"min=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig holds the managed database connection settings.
type DatabaseConfig struct {
	// postgres:// URL or keyword/value DSN of the managed database
	URL string `koanf:"url" json:"-" validate:"required"`

	// Database used for DROP/CREATE DATABASE during exclusive restores
	AdminDatabase string `koanf:"admin_database" json:"admin_database" validate:"required"`

	MaxConns          int32         `koanf:"max_conns" json:"max_conns" validate:"min=1"`
	MinConns          int32         `koanf:"min_conns" json:"min_conns" validate:"min=0"`
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime" json:"max_conn_lifetime"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period" json:"health_check_period"`

	// Apply record/audit schema migrations at startup
	MigrateOnStart bool `koanf:"migrate_on_start" json:"migrate_on_start"`
}

// PoolConfig returns the pgxpool sizing.
func (d DatabaseConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		HealthCheckPeriod: d.HealthCheckPeriod,
	}
}

// ConnParams parses URL.
func (d DatabaseConfig) ConnParams() (database.ConnParams, error) {
	return database.ParseConnString(d.URL)
}

// Record store kinds.
const (
	RecordStorePostgres = "postgres"
	RecordStoreBadger   = "badger"
)

// RecordsConfig selects where backup records and audit entries live.
type RecordsConfig struct {
	// postgres keeps records in the managed database; badger keeps them in
	// an embedded store under BadgerPath
	Store string `koanf:"store" json:"store" validate:"oneof=postgres badger"`

	BadgerPath string `koanf:"badger_path" json:"badger_path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller"`
}

// LoggerConfig converts to the logging package configuration. Log lines
// carry the same instance ID as backup metadata.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	cfg.Instance = c.Backup.ResolvedInstanceID()
	return cfg
}

// Validate checks struct tags and the cross-field rules they cannot express.
func (c *Config) Validate() error {
	if err := validation.Err(c); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if _, err := c.Database.ConnParams(); err != nil {
		return fmt.Errorf("database.url: %w", err)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	if c.Records.Store == RecordStoreBadger && c.Records.BadgerPath == "" {
		return fmt.Errorf("records.badger_path is required when records.store is badger")
	}
	if c.Events.Enabled && !c.Events.EmbeddedServer && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when the embedded NATS server is disabled")
	}
	if (c.Server.RateLimitRequests > 0 || c.Server.HeavyRateLimitRequests > 0) && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	for _, loc := range c.Backup.StorageLocations {
		if !c.LocationConfigured(loc) {
			return fmt.Errorf("backup.storage_locations: %s is not enabled", loc)
		}
	}
	return nil
}

// LocationConfigured reports whether a storage location is enabled.
func (c *Config) LocationConfigured(loc string) bool {
	switch loc {
	case storage.LocationLocal:
		return true
	case storage.LocationS3:
		return c.Storage.S3.Enabled
	case storage.LocationGCS:
		return c.Storage.GCS.Enabled
	case storage.LocationAzure:
		return c.Storage.Azure.Enabled
	case storage.LocationGoogleDrive:
		return c.Backup.GoogleDrive.Enabled
	default:
		return false
	}
}
