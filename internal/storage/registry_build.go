// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// Config holds the remote object store settings. Google Drive settings live
// in the backup section and are passed separately.
type Config struct {
	S3      S3Config      `koanf:"s3" json:"s3"`
	GCS     GCSConfig     `koanf:"gcs" json:"gcs"`
	Azure   AzureConfig   `koanf:"azure" json:"azure"`
	Breaker BreakerConfig `koanf:"breaker" json:"breaker"`
}

// BuildRegistry registers "local" plus every enabled remote location.
// A remote location that cannot be constructed is logged and skipped so a
// bad credential does not stop local backups; the returned error joins
// every construction failure.
func BuildRegistry(ctx context.Context, cfg Config, driveCfg DriveConfig, backupDir string, onBreaker StateChangeFunc) (*Registry, error) {
	reg := NewRegistry()
	reg.Register(NewLocalProvider(backupDir))

	var errs []error
	add := func(name string, p Provider, err error) {
		if err != nil {
			logging.Error().Err(err).Str("location", name).Msg("Storage location disabled")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		reg.Register(NewBreakerProvider(p, cfg.Breaker, onBreaker))
		logging.Info().Str("location", name).Msg("Storage location registered")
	}

	if cfg.S3.Enabled {
		p, err := NewS3Provider(ctx, cfg.S3)
		add(LocationS3, p, err)
	}
	if cfg.GCS.Enabled {
		p, err := NewGCSProvider(ctx, cfg.GCS)
		add(LocationGCS, p, err)
	}
	if cfg.Azure.Enabled {
		p, err := NewAzureProvider(cfg.Azure)
		add(LocationAzure, p, err)
	}
	if driveCfg.Enabled {
		p, err := NewDriveProvider(ctx, driveCfg)
		add(LocationGoogleDrive, p, err)
	}

	return reg, errors.Join(errs...)
}
