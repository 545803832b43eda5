// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/scheduler"
	ws "github.com/tomtom215/dbwarden/internal/websocket"
)

// BackupService creates, lists and deletes backups.
type BackupService interface {
	CreateBackup(ctx context.Context, req backup.CreateRequest) (*backup.Record, error)
	ListBackups(ctx context.Context) ([]*backup.Record, error)
	GetBackup(ctx context.Context, id string) (*backup.Record, error)
	DeleteBackup(ctx context.Context, id string) error
}

// VerifyService verifies stored backups.
type VerifyService interface {
	VerifyBackup(ctx context.Context, id string) (*backup.VerifyResult, error)
	VerifyDeep(ctx context.Context, id string) (*backup.DeepVerifyResult, error)
}

// RestoreService starts restores and exposes their sessions.
type RestoreService interface {
	StartRestore(ctx context.Context, backupID string, opts restore.Options) (string, error)
	Sessions() *restore.SessionStore
}

// MaintenanceService reports maintenance mode.
type MaintenanceService interface {
	State() maintenance.State
	Active() bool
}

// ScheduleService exposes the backup scheduler.
type ScheduleService interface {
	Entries() []scheduler.Entry
	Running() bool
	Reload(ctx context.Context) error
	RunRetention(ctx context.Context) (*backup.CleanupSummary, error)
}

// AuditLog lists audit entries.
type AuditLog interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventStatus reports on the event bus.
type EventStatus interface {
	IsRunning() bool
}

// Deps are the handler dependencies. Schedules, Audit and Events are
// optional; their endpoints answer 503 when nil.
type Deps struct {
	Backups     BackupService
	Verifier    VerifyService
	Restores    RestoreService
	Maintenance MaintenanceService
	Schedules   ScheduleService
	Audit       AuditLog
	Database    Pinger
	Events      EventStatus
	Hub         *ws.Hub

	// Origins allowed to open WebSocket connections; "*" allows any
	AllowedOrigins []string

	Version string
}

// Handler serves the HTTP API.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler validates the required dependencies.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Backups == nil:
		return nil, errors.New("api: backup service is required")
	case deps.Verifier == nil:
		return nil, errors.New("api: verifier is required")
	case deps.Restores == nil:
		return nil, errors.New("api: restore service is required")
	case deps.Maintenance == nil:
		return nil, errors.New("api: maintenance service is required")
	}
	return &Handler{deps: deps, startTime: time.Now()}, nil
}
