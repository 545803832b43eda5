// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package main is the entry point for DBWarden.
//
// DBWarden backs up a single PostgreSQL database on cron schedules, uploads
// the artifacts to local disk and remote object stores, verifies them and
// restores them under a maintenance-mode lock.
//
// # Commands
//
//	dbwarden serve                     # HTTP API, scheduler, websocket and events
//	dbwarden backup create [-d text]   # one backup, uploaded to the configured locations
//	dbwarden backup list
//	dbwarden backup verify <id> [--deep]
//	dbwarden backup delete <id>
//	dbwarden restore <id> --confirm RESTORE [--drop-database]
//	dbwarden cleanup [--days N]
//	dbwarden version
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (DATABASE_URL, BACKUP_DIR, S3_BUCKET, ...)
//   - Config file (--config, CONFIG_PATH, ./config.yaml or /etc/dbwarden/config.yaml)
//   - Built-in defaults
//
// Backup schedules can only be set in the config file. While serve is
// running, edits to the file are picked up without a restart.
//
// # Signal Handling
//
// serve shuts down on SIGINT and SIGTERM. The supervisor stops the HTTP
// server first, then the scheduler (waiting for a running backup), then the
// event bus and websocket hub.
//
// One-shot commands run the engine in-process. They share the record store
// with a running server but not its restore lock, so do not run
// "dbwarden restore" while a server is restoring.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
