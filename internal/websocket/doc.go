// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package websocket pushes restore progress, maintenance mode changes and
finished backups to connected operators.

The package uses gorilla/websocket with a hub-and-client layout. The Hub owns
the client set and fans messages out; each Client runs a read pump (pings,
subscriptions and disconnect detection) and a write pump (queued messages and keepalives).

Message types:

  - restore_progress: a restore.ProgressEvent
  - maintenance: a maintenance.State after maintenance mode changes
  - backup_finished: status, size and locations of a finished backup
  - ping / pong: client keepalive
  - subscribe / unsubscribe / subscribed: scope restore_progress to one
    restore_id; other message types are always delivered

The Hub implements restore.Observer, maintenance.Listener and
backup.Notifier, so main wires it directly:

	hub := websocket.NewHub()
	orchestrator.AddObserver(hub)
	coordinator.AddListener(hub)
	tree.Add(supervisor.LayerMessaging, services.NewHubService(hub))

Broadcasts never block the caller. When the hub queue is full a message is
dropped, and a client that cannot keep up is disconnected.
*/
package websocket
