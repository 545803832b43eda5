// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package supervisor runs DBWarden's long-lived services under suture v4.

# Tree

	RootSupervisor ("dbwarden")
	├── DataSupervisor ("data-layer")
	│   └── restore session janitor
	├── JobsSupervisor ("jobs-layer")
	│   └── backup scheduler (PausableService)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── HubService (WebSocket)
	│   └── EventBusService (NATS, if enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer restarts its own children with backoff, so a failing event bus
does not take the API down.

# Pausing

Restores put the service into maintenance mode, and the maintenance
coordinator pauses every registered maintenance.Pausable. Supervised services
join that set through PausableService, which removes the service from its
layer on Pause and adds it back on Resume:

	sched := tree.AddPausable("scheduler", scheduler)
	coordinator.Register(sched)

# Logging

Supervisor events (service start, failure, backoff) are logged through
sutureslog using the slog adapter from the logging package:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	errCh := tree.ServeBackground(ctx)

# Configuration

TreeConfig zero values fall back to suture's defaults: 5 failures before
backoff, 30s decay, 15s backoff and a 10s per-service shutdown timeout.
*/
package supervisor
