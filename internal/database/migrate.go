// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tomtom215/dbwarden/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseOnce sync.Once

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logging.Info().Str("component", "migrations").Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logging.Fatal().Str("component", "migrations").Msgf(format, v...)
}

func initGoose() error {
	var err error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationsFS)
		goose.SetLogger(gooseLogger{})
		err = goose.SetDialect("postgres")
	})
	return err
}

// Migrate applies pending record-store migrations using db.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := initGoose(); err != nil {
		return fmt.Errorf("failed to configure migrations: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Migrate applies pending migrations through the pool. After an exclusive
// restore the record tables may be gone, so the orchestrator calls this once
// the pool is reconnected.
func (p *Pool) Migrate(ctx context.Context) error {
	pool, err := p.current()
	if err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close() //nolint:errcheck // Best effort cleanup

	return Migrate(ctx, db)
}
