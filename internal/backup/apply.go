// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/sqlscan"
)

// ApplyOptions controls how a decoded dump is applied to a database.
type ApplyOptions struct {
	// Wrap the whole dump in one transaction
	SingleTransaction bool

	// The target has no other sessions; non-transactional statements are kept
	Exclusive bool

	// Target catalog for plain-dump filtering; nil keeps every SET and
	// CREATE EXTENSION
	Catalog *database.Catalog
}

// ApplyResult describes an applied dump.
type ApplyResult struct {
	Tool       string          `json:"tool"`
	Duration   time.Duration   `json:"duration"`
	Preprocess *sqlscan.Report `json:"preprocess,omitempty"`
}

// Applier loads decoded dumps into a database with psql or pg_restore.
type Applier struct {
	tools Tools
}

// NewApplier creates an Applier.
func NewApplier(tools Tools) *Applier {
	return &Applier{tools: tools}
}

// Apply loads the decoded dump at path into target. Plain dumps are filtered
// into a sibling file first, which is removed afterwards.
func (a *Applier) Apply(ctx context.Context, target process.Target, path string, format DumpFormat, opts ApplyOptions) (*ApplyResult, error) {
	start := time.Now()

	if format == FormatCustom {
		if err := a.tools.CheckAvailable(process.ToolPgRestore); err != nil {
			return nil, err
		}
		if _, err := a.tools.RestoreArchive(ctx, target, path, opts.SingleTransaction); err != nil {
			return nil, err
		}
		return &ApplyResult{Tool: process.ToolPgRestore, Duration: time.Since(start)}, nil
	}

	if err := a.tools.CheckAvailable(process.ToolPsql); err != nil {
		return nil, err
	}
	filtered, report, err := sqlscan.Preprocess(path, sqlscan.Options{
		Catalog:   opts.Catalog,
		Exclusive: opts.Exclusive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess dump: %w", err)
	}
	defer os.Remove(filtered) //nolint:errcheck // Best effort cleanup

	for _, w := range report.Warnings {
		logging.Warn().Str("path", path).Msg(w)
	}

	if _, err := a.tools.ExecSQLFile(ctx, target, filtered, opts.SingleTransaction); err != nil {
		return nil, err
	}
	return &ApplyResult{Tool: process.ToolPsql, Duration: time.Since(start), Preprocess: report}, nil
}
