// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/dbwarden/internal/api"
	"github.com/tomtom215/dbwarden/internal/config"
	"github.com/tomtom215/dbwarden/internal/events"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
	"github.com/tomtom215/dbwarden/internal/scheduler"
	"github.com/tomtom215/dbwarden/internal/supervisor"
	"github.com/tomtom215/dbwarden/internal/supervisor/services"
	ws "github.com/tomtom215/dbwarden/internal/websocket"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, backup scheduler and event publisher",
		Long: `Run DBWarden as a service.

The supervisor tree runs the websocket hub and event bus (messaging layer),
the cron scheduler and restore session janitor (jobs layer) and the HTTP
server (API layer). During a restore the scheduler is stopped and restarted
by the maintenance coordinator.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return runServe(ctx, cfg, path)
		},
	}
}

//nolint:gocyclo // Sequential service wiring
func runServe(ctx context.Context, cfg *config.Config, path string) error {
	logging.Info().
		Str("version", version).
		Str("config", path).
		Str("records", cfg.Records.Store).
		Strs("locations", cfg.Backup.StorageLocations).
		Msg("Starting DBWarden with supervisor tree")
	metrics.SetAppInfo(version, runtime.Version())

	a, err := buildApp(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
		return err
	}

	// Messaging layer: websocket hub and optional event bus
	hub := ws.NewHub()
	tree.Add(supervisor.LayerMessaging, services.NewHubService(hub))
	a.addNotifier(hub)
	a.restores.AddObserver(hub)
	a.coordinator.AddListener(hub)

	var eventStatus api.EventStatus
	if cfg.Events.Enabled {
		bus := events.NewBus(cfg.Events)
		tree.Add(supervisor.LayerMessaging, services.NewEventBusService(bus, cfg.Supervisor.ShutdownTimeout))
		a.addNotifier(bus)
		a.restores.AddObserver(bus)
		a.coordinator.AddListener(bus)
		eventStatus = bus
		logging.Info().Str("stream", cfg.Events.Stream).Bool("embedded", cfg.Events.EmbeddedServer).Msg("Event bus added to supervisor tree")
	}

	// Jobs layer: the scheduler pauses during restores, the janitor does not
	// touch the database and keeps running
	sched := scheduler.New(a.engine, a.manager, a.coordinator)
	pausable := tree.AddPausable("scheduler", sched)
	a.coordinator.Register(pausable)
	tree.Add(supervisor.LayerJobs, a.sessions)

	// Hot reload: schedules, retention and log level
	a.manager.Subscribe(func(next *config.Config) {
		logging.SetLevelString(next.Logging.Level)
		if !pausable.Running() {
			return
		}
		reloadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Reload(reloadCtx); err != nil {
			logging.Error().Err(err).Msg("Failed to apply reloaded schedules")
		}
	})
	if err := a.manager.Watch(); err != nil {
		logging.Warn().Err(err).Msg("Config file changes will need a restart")
	}

	// API layer
	handler, err := api.NewHandler(api.Deps{
		Backups:        a.engine,
		Verifier:       a.verifier,
		Restores:       a.restores,
		Maintenance:    a.coordinator,
		Schedules:      sched,
		Audit:          a.auditStore,
		Database:       a.pool,
		Events:         eventStatus,
		Hub:            hub,
		AllowedOrigins: cfg.Server.CORSOrigins,
		Version:        version,
	})
	if err != nil {
		return err
	}

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitRequests
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.HeavyRateLimitRequests = cfg.Server.HeavyRateLimitRequests

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mwCfg).Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("DBWarden stopped gracefully")
	return nil
}
