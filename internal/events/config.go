// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package events

import "time"

// Subjects published on the bus.
const (
	TopicRestoreProgress = "dbwarden.restore.progress"
	TopicMaintenance     = "dbwarden.maintenance"
	TopicBackupFinished  = "dbwarden.backup.finished"
)

// Config configures the NATS event bus.
type Config struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	URL     string `koanf:"url" json:"url" validate:"omitempty,url"`

	// EmbeddedServer starts an in-process NATS server with JetStream and
	// publishes to it instead of URL.
	EmbeddedServer bool   `koanf:"embedded_server" json:"embedded_server"`
	Host           string `koanf:"host" json:"host"`
	Port           int    `koanf:"port" json:"port" validate:"min=0,max=65535"`
	StoreDir       string `koanf:"store_dir" json:"store_dir"`

	Stream          string        `koanf:"stream" json:"stream" validate:"required_if=Enabled true"`
	MaxAge          time.Duration `koanf:"max_age" json:"max_age"`
	DuplicateWindow time.Duration `koanf:"duplicate_window" json:"duplicate_window"`

	MaxReconnects   int           `koanf:"max_reconnects" json:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait" json:"reconnect_wait"`
	ReconnectBuffer int           `koanf:"reconnect_buffer" json:"reconnect_buffer"`

	Breaker BreakerConfig `koanf:"breaker" json:"breaker"`
}

// BreakerConfig holds circuit breaker settings for publishing.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests" json:"max_requests"` // Allowed in half-open state
	Interval         time.Duration `koanf:"interval" json:"interval"`         // Reset interval for counts
	Timeout          time.Duration `koanf:"timeout" json:"timeout"`           // Time to stay open
	FailureThreshold uint32        `koanf:"failure_threshold" json:"failure_threshold"`
}

// DefaultConfig returns the bus defaults. The bus is off unless enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		URL:             "nats://127.0.0.1:4222",
		EmbeddedServer:  true,
		Host:            "127.0.0.1",
		Port:            4222,
		StoreDir:        "/var/lib/dbwarden/nats",
		Stream:          "DBWARDEN",
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024,
		Breaker:         DefaultBreakerConfig(),
	}
}

// DefaultBreakerConfig returns production breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Subjects returns the subject filter captured by the stream.
func (c Config) Subjects() []string {
	return []string{"dbwarden.>"}
}
