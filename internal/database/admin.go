// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// Conn is a single connection that must be closed.
type Conn interface {
	Querier
	Close(ctx context.Context) error
}

// DialFunc opens a single connection.
type DialFunc func(ctx context.Context, connString string) (Conn, error)

func pgxDial(ctx context.Context, connString string) (Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Admin performs database-level operations through the maintenance
// database, never through the application pool.
type Admin struct {
	params  ConnParams
	adminDB string
	dial    DialFunc
}

// NewAdmin creates an Admin. adminDatabase is usually "postgres".
func NewAdmin(params ConnParams, adminDatabase string) *Admin {
	if adminDatabase == "" {
		adminDatabase = "postgres"
	}
	return &Admin{params: params, adminDB: adminDatabase, dial: pgxDial}
}

// Params returns the server parameters (database field is the managed database).
func (a *Admin) Params() ConnParams {
	return a.params
}

// WithDatabase runs fn with a dedicated connection to the named database.
func (a *Admin) WithDatabase(ctx context.Context, name string, fn func(Querier) error) error {
	conn, err := a.dial(ctx, a.params.WithDatabase(name).ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database %s: %w", name, err)
	}
	defer conn.Close(context.WithoutCancel(ctx)) //nolint:errcheck // Best effort cleanup

	return fn(conn)
}

func (a *Admin) withAdmin(ctx context.Context, fn func(Querier) error) error {
	return a.WithDatabase(ctx, a.adminDB, fn)
}

// TerminateConnections kills every other backend connected to name.
func (a *Admin) TerminateConnections(ctx context.Context, name string) (int64, error) {
	var terminated int64
	err := a.withAdmin(ctx, func(q Querier) error {
		tag, err := q.Exec(ctx, `SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
		if err != nil {
			return fmt.Errorf("failed to terminate connections to database %s: %w", name, err)
		}
		terminated = tag.RowsAffected()
		return nil
	})
	if err == nil && terminated > 0 {
		logging.Info().Str("database", name).Int64("terminated", terminated).Msg("Terminated backend connections")
	}
	return terminated, err
}

// DropDatabase drops name if it exists.
func (a *Admin) DropDatabase(ctx context.Context, name string) error {
	return a.withAdmin(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("failed to drop database %s: %w", name, err)
		}
		return nil
	})
}

// CreateDatabase creates an empty database.
func (a *Admin) CreateDatabase(ctx context.Context, name string) error {
	return a.withAdmin(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create database %s: %w", name, err)
		}
		return nil
	})
}

// DatabaseExists reports whether name exists.
func (a *Admin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := a.withAdmin(ctx, func(q Querier) error {
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check database existence: %w", err)
		}
		return nil
	})
	return exists, err
}
