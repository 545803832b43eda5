// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package logging provides centralized zerolog-based logging for DBWarden.
//
// All components log through the package-level helpers so that level, format
// and output are configured once at startup:
//
//	logging.Init(logging.Config{Level: "info", Format: "json", Instance: "primary"})
//
//	logging.Info().Str("backup_id", id).Msg("Backup completed")
//	logging.Error().Err(err).Str("restore_id", rid).Msg("Restore failed")
//
//	// With context (correlation ID, operation ID)
//	logging.Ctx(ctx).Info().Msg("Restore step finished")
//
// Every line carries service=dbwarden and, when configured, the instance ID
// that is also stamped into backup metadata, so logs from several wardens
// can share one sink.
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is written as the service field of every line.
const ServiceName = "dbwarden"

// quietEnvVar silences logging below fatal, for test runs.
const quietEnvVar = "DBWARDEN_TEST_QUIET"

// Config holds logging configuration.
type Config struct {
	// Level is one of trace, debug, info, warn, error, fatal, panic.
	Level string

	// Format is json or console.
	Format string

	// Caller adds file:line to every line.
	Caller bool

	// Instance identifies the managed database instance; omitted when empty.
	Instance string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

//nolint:gochecknoinits // init ensures logging works before explicit Init() call
func init() {
	cfg := DefaultConfig()
	if os.Getenv(quietEnvVar) == "1" {
		cfg.Level = "fatal"
	}
	log = build(cfg)
}

// Init replaces the global logger. Calling it again reconfigures logging,
// which the CLI does once the config file has been read.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	log = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	c := zerolog.New(out).With().Timestamp().Str("service", ServiceName)
	if cfg.Instance != "" {
		c = c.Str("instance", cfg.Instance)
	}
	if cfg.Caller {
		c = c.Caller()
	}
	return c.Logger()
}

// parseLevel falls back to info for unknown names.
func parseLevel(level string) zerolog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether level is a recognized log level name.
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToLower(level)]
	return ok
}

// SetLevelString changes the global level. Config reloads call it.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the global logger instance.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With creates a child logger context with additional fields.
func With() zerolog.Context {
	l := Logger()
	return l.With()
}

func current() *zerolog.Logger {
	l := Logger()
	return &l
}

// Debug starts a debug event.
func Debug() *zerolog.Event { return current().Debug() }

// Info starts an info event.
func Info() *zerolog.Event { return current().Info() }

// Warn starts a warning event.
func Warn() *zerolog.Event { return current().Warn() }

// Error starts an error event.
func Error() *zerolog.Event { return current().Error() }

// Fatal starts a fatal event; os.Exit(1) runs after Msg.
func Fatal() *zerolog.Event { return current().Fatal() }

// Err starts an error event carrying err, or an info event when err is nil.
func Err(err error) *zerolog.Event { return current().Err(err) }

// NewTestLogger creates a logger that writes JSON to w.
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
