// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPostgresImage is used when no image is configured.
	DefaultPostgresImage = "postgres:16-alpine"

	// Credentials of the managed test database.
	DefaultPostgresUser     = "warden"
	DefaultPostgresPassword = "warden-test"
	DefaultPostgresDatabase = "appdb"
)

// PostgresContainer is a running PostgreSQL server for integration tests.
type PostgresContainer struct {
	*postgres.PostgresContainer

	// URL is a postgres:// connection string for Database with sslmode=disable.
	URL      string
	Database string
}

// PostgresOption configures the PostgreSQL container.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	database     string
	startTimeout time.Duration
}

// WithPostgresImage sets a custom PostgreSQL image, e.g. postgres:15.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) {
		c.image = image
	}
}

// WithDatabase sets the name of the database created at startup.
func WithDatabase(name string) PostgresOption {
	return func(c *postgresConfig) {
		c.database = name
	}
}

// WithStartTimeout bounds how long to wait for the server to accept connections.
func WithStartTimeout(timeout time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		c.startTimeout = timeout
	}
}

// NewPostgresContainer starts PostgreSQL and waits until it accepts connections.
//
// The image must ship the same major version of pg_dump, pg_restore and psql
// as the host running the test, or dumps fail the version check.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		database:     DefaultPostgresDatabase,
		startTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// The server restarts once after initdb, so the ready line shows up twice.
	container, err := postgres.Run(ctx,
		cfg.image,
		postgres.WithUsername(DefaultPostgresUser),
		postgres.WithPassword(DefaultPostgresPassword),
		postgres.WithDatabase(cfg.database),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(cfg.startTimeout),
		),
	)
	if err != nil {
		if container != nil {
			//nolint:errcheck // Best effort cleanup
			container.Terminate(ctx)
		}
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		//nolint:errcheck // Best effort cleanup
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		URL:               url,
		Database:          cfg.database,
	}, nil
}

// StartPostgres starts a container for t and terminates it on cleanup. The
// test is skipped when Docker is unavailable.
func StartPostgres(t *testing.T, opts ...PostgresOption) *PostgresContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	pg, err := NewPostgresContainer(ctx, opts...)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() {
		CleanupContainer(t, context.Background(), pg)
	})
	return pg
}
