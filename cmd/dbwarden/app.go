// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
app.go - Component Wiring

buildApp constructs everything below the transport layer: the application
pool, record and audit stores, storage registry, backup engine, verifier,
maintenance coordinator and restore orchestrator. serve adds the HTTP API,
scheduler, websocket hub and event bus on top; the one-shot commands use
the components directly.
*/

//nolint:staticcheck // File documentation, not package doc
package main

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/config"
	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/metrics"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/storage"
)

// app holds the wired components. Close releases them in reverse order.
type app struct {
	cfg      *config.Config
	manager  *config.Manager
	params   database.ConnParams
	pool     *database.Pool
	admin    *database.Admin
	kv       *badger.DB
	registry *storage.Registry

	backupStore backup.RecordStore
	auditStore  audit.Store
	recorder    *audit.Recorder

	tools       *process.Tools
	engine      *backup.Engine
	verifier    *backup.Verifier
	coordinator *maintenance.Coordinator
	restores    *restore.Orchestrator
	sessions    *restore.SessionStore

	// notifiers receive finished backups; serve appends the hub and bus
	// before any backup can run
	notifiers *backup.Notifiers
}

// buildApp wires the core components from cfg. path is the config file
// reloads read from.
func buildApp(ctx context.Context, cfg *config.Config, path string) (a *app, err error) {
	a = &app{
		cfg:       cfg,
		manager:   config.NewManager(cfg, path),
		notifiers: &backup.Notifiers{},
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.params, err = cfg.Database.ConnParams()
	if err != nil {
		return a, fmt.Errorf("invalid database url: %w", err)
	}

	a.pool, err = database.Open(ctx, a.params, cfg.Database.PoolConfig())
	if err != nil {
		return a, fmt.Errorf("failed to connect to database: %w", err)
	}
	logging.Info().Str("database", a.params.Redacted()).Msg("Database pool connected")

	if cfg.Database.MigrateOnStart && cfg.Records.Store == config.RecordStorePostgres {
		if err := a.pool.Migrate(ctx); err != nil {
			return a, err
		}
	}
	a.admin = database.NewAdmin(a.params, cfg.Database.AdminDatabase)

	// The embedded store always holds the maintenance flag, which must survive
	// an exclusive restore of the managed database.
	a.kv, err = database.OpenBadger(cfg.Records.BadgerPath)
	if err != nil {
		return a, fmt.Errorf("failed to open embedded store: %w", err)
	}

	switch cfg.Records.Store {
	case config.RecordStoreBadger:
		a.backupStore = backup.NewBadgerStore(a.kv)
		a.auditStore = audit.NewBadgerStore(a.kv)
	default:
		a.backupStore = backup.NewPostgresStore(a.pool)
		a.auditStore = audit.NewPostgresStore(a.pool)
	}
	a.recorder = audit.NewRecorder(a.auditStore)

	a.registry, err = storage.BuildRegistry(ctx, cfg.Storage, cfg.Backup.GoogleDrive, cfg.Backup.BackupDir,
		func(location, from, to string) {
			metrics.RecordBreakerTransition("storage_"+location, from, to)
		})
	if err != nil {
		// Failed remote locations are skipped; local backups still run.
		logging.Warn().Err(err).Msg("Some storage locations are unavailable")
	}

	a.coordinator = maintenance.NewCoordinator(maintenance.Options{
		GracePeriod: cfg.Restore.GracePeriod,
		Store:       maintenance.NewBadgerFlagStore(a.kv),
	})
	if stale, err := a.coordinator.Recover(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to recover maintenance flag")
	} else if stale {
		logging.Warn().Msg("Previous process exited during a restore; verify the database before relying on it")
	}

	a.tools = process.NewTools(process.NewExecRunner(), cfg.Tools)
	if err := a.tools.CheckAvailable("pg_dump", "pg_restore", "psql"); err != nil {
		logging.Warn().Err(err).Msg("PostgreSQL client tools missing; backups and restores will fail")
	}

	a.engine, err = backup.NewEngine(backup.Deps{
		Config:     a.manager,
		Store:      a.backupStore,
		Tools:      a.tools,
		Inspector:  backup.NewInspector(a.pool),
		Target:     a.params,
		Providers:  a.registry,
		Gate:       a.coordinator,
		Audit:      a.recorder,
		Notifier:   a.notifiers,
		Disk:       backup.HostDisk{},
		AppVersion: version,
	})
	if err != nil {
		return a, fmt.Errorf("failed to create backup engine: %w", err)
	}

	applier := backup.NewApplier(a.tools)
	a.verifier = backup.NewVerifier(a.engine, a.admin, applier)

	a.sessions = restore.NewSessionStore(cfg.Restore.SessionTTL, cfg.Restore.MaxSessions)
	a.restores, err = restore.NewOrchestrator(restore.Deps{
		Config:      cfg.Restore,
		Backups:     a.engine,
		Verifier:    a.verifier,
		Applier:     applier,
		Maintenance: a.coordinator,
		Pool:        a.pool,
		Admin:       a.admin,
		Inspector:   restore.NewInspector(a.pool),
		Audit:       a.recorder,
		Sessions:    a.sessions,
	})
	if err != nil {
		return a, fmt.Errorf("failed to create restore orchestrator: %w", err)
	}

	return a, nil
}

// addNotifier registers n for finished backups.
func (a *app) addNotifier(n backup.Notifier) {
	*a.notifiers = append(*a.notifiers, n)
}

// Close releases the pool and the embedded store.
func (a *app) Close() {
	if a == nil {
		return
	}
	a.manager.StopWatching()
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing embedded store")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
