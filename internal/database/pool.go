// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
pool.go - Drainable Application Connection Pool

The restore orchestrator needs every application connection gone before it
drops or rewrites the database, and a fresh pool afterwards. Pool wraps
pgxpool with Drain/Reconnect so the rest of the process can hold one stable
*Pool for its lifetime.

While drained, every query fails fast with ErrPoolDrained instead of blocking.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// ErrPoolDrained is returned by queries issued while the pool is drained.
var ErrPoolDrained = errors.New("database pool is drained")

// PoolConfig tunes the underlying pgxpool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// Pool is a pgxpool that can be drained and rebuilt.
type Pool struct {
	mu      sync.RWMutex
	pool    *pgxpool.Pool
	params  ConnParams
	cfg     PoolConfig
	drained bool
}

// Open connects a new pool and pings the server.
func Open(ctx context.Context, params ConnParams, cfg PoolConfig) (*Pool, error) {
	p := &Pool{params: params, cfg: cfg}
	pool, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(p.params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	if p.cfg.MaxConns > 0 {
		pcfg.MaxConns = p.cfg.MaxConns
	}
	if p.cfg.MinConns > 0 {
		pcfg.MinConns = p.cfg.MinConns
	}
	if p.cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = p.cfg.MaxConnLifetime
	}
	if p.cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = p.cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", p.params.Redacted(), err)
	}
	return pool, nil
}

func (p *Pool) current() (*pgxpool.Pool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.drained || p.pool == nil {
		return nil, ErrPoolDrained
	}
	return p.pool, nil
}

// Params returns the connection parameters of the managed database.
func (p *Pool) Params() ConnParams {
	return p.params
}

// Exec implements Querier.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := p.current()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

// Query implements Querier.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := p.current()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow implements Querier.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := p.current()
	if err != nil {
		return errRow{err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// Ping checks connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	pool, err := p.current()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Drained reports whether the pool is currently drained.
func (p *Pool) Drained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.drained
}

// Drain closes every pooled connection. Close blocks until acquired
// connections are released. Draining twice is a no-op.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drained {
		return
	}
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	p.drained = true
	logging.Info().Str("database", p.params.Database).Msg("Connection pool drained")
}

// Reconnect builds a fresh pool. It is a no-op when the pool is open.
func (p *Pool) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.drained && p.pool != nil {
		return nil
	}
	pool, err := p.connect(ctx)
	if err != nil {
		return err
	}
	p.pool = pool
	p.drained = false
	logging.Info().Str("database", p.params.Database).Msg("Connection pool re-established")
	return nil
}

// Close releases the pool permanently.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	p.drained = true
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
