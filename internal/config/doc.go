// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
Package config loads and validates DBWarden configuration.

# Configuration Sources

Configuration is layered with koanf, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, then config.yaml, config.yml,
    /etc/dbwarden/config.yaml and /etc/dbwarden/config.yml
 3. Environment variables listed in the mapping table

# Environment Variables

Only mapped variables are read. A selection:

  - DATABASE_URL: connection string of the managed database (required)
  - BACKUP_DIR: local backup directory (default: /data/backups)
  - BACKUP_RETENTION_DAYS: retention window in days (default: 30)
  - BACKUP_STORAGE_LOCATIONS: comma-separated default locations
  - BACKUP_ENCRYPTION_KEY: passphrase, at least 32 characters
  - S3_BUCKET, GCS_BUCKET, AZURE_ACCOUNT: remote storage
  - NATS_ENABLED, NATS_URL: event publishing
  - RECORDS_STORE: postgres or badger
  - LOG_LEVEL, LOG_FORMAT: logging

Schedules are only configurable in the YAML file:

	backup:
	  schedules:
	    - id: nightly
	      frequency: daily
	      time: "02:30"
	      enabled: true
	      storage_locations: [local, s3]

# Runtime Reload

Manager swaps the configuration when the file changes and notifies
subscribers. The server uses this to reload backup schedules and the log
level without restarting.
*/
package config
