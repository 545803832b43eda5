// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package events publishes DBWarden domain events to NATS JetStream through
Watermill.

Three subjects are published, all captured by one stream:

  - dbwarden.restore.progress: every restore state transition
  - dbwarden.maintenance: maintenance mode changes
  - dbwarden.backup.finished: each backup once it reaches a final status

Payloads are JSON. Every message carries event_type and timestamp metadata,
and its UUID doubles as the Nats-Msg-Id so JetStream drops duplicates within
the stream's duplicate window.

The bus can run an embedded NATS server for single-node deployments. Publish
calls go through a circuit breaker so a dead broker does not slow restores.

Usage:

	bus := events.NewBus(cfg.Events)
	tree.Add(supervisor.LayerMessaging, services.NewEventBusService(bus, cfg.Supervisor.ShutdownTimeout))
	orchestrator.AddObserver(bus)
	coordinator.AddListener(bus)
*/
package events
