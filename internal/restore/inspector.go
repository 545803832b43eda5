// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package restore

import (
	"context"

	"github.com/tomtom215/dbwarden/internal/database"
)

// Inspector reads metadata from the restore target.
type Inspector interface {
	Snapshot(ctx context.Context, keyTables []string) (*database.Snapshot, error)
	Catalog(ctx context.Context) (*database.Catalog, error)
}

// NewInspector returns an Inspector over q, normally the application pool.
func NewInspector(q database.Querier) Inspector {
	return dbInspector{q: q}
}

type dbInspector struct {
	q database.Querier
}

func (i dbInspector) Snapshot(ctx context.Context, keyTables []string) (*database.Snapshot, error) {
	return database.TakeSnapshot(ctx, i.q, keyTables)
}

func (i dbInspector) Catalog(ctx context.Context) (*database.Catalog, error) {
	return database.LoadCatalog(ctx, i.q)
}
