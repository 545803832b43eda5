// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package services adapts DBWarden components to suture.Service.

Components with other lifecycles are translated into suture's context-aware
Serve pattern:

  - HTTPServerService: Listen, Serve and Shutdown (API server)
  - HubService: RunWithContext (WebSocket hub)
  - EventBusService: Start/Shutdown (NATS event bus)

The restore session janitor and the backup scheduler implement Serve
themselves and are added to the tree directly.

Usage:

	tree.Add(supervisor.LayerMessaging, services.NewHubService(hub))
	tree.Add(supervisor.LayerMessaging, services.NewEventBusService(bus, 10*time.Second))
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, cfg.Server.Addr(), 10*time.Second))
*/
package services
