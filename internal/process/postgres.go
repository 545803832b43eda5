// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package process

import (
	"context"
	"fmt"
	"io"
)

// Tool names.
const (
	ToolPgDump    = "pg_dump"
	ToolPgRestore = "pg_restore"
	ToolPsql      = "psql"
)

// Dump formats accepted by Dump.
const (
	FormatPlain  = "plain"
	FormatCustom = "custom"
)

// Target supplies connection arguments for a database.
// Args returns -h/-p/-U/-d style flags; Env returns PGPASSWORD and friends.
type Target interface {
	Args() []string
	Env() []string
}

// ToolPaths overrides binary locations. Empty values fall back to PATH lookup.
type ToolPaths struct {
	PgDump    string `koanf:"pg_dump" json:"pg_dump"`
	PgRestore string `koanf:"pg_restore" json:"pg_restore"`
	Psql      string `koanf:"psql" json:"psql"`
}

func (p ToolPaths) resolve(tool string) string {
	switch tool {
	case ToolPgDump:
		if p.PgDump != "" {
			return p.PgDump
		}
	case ToolPgRestore:
		if p.PgRestore != "" {
			return p.PgRestore
		}
	case ToolPsql:
		if p.Psql != "" {
			return p.Psql
		}
	}
	return tool
}

// Tools wraps the PostgreSQL client binaries.
type Tools struct {
	runner Runner
	paths  ToolPaths
}

// NewTools creates a Tools using runner for execution.
func NewTools(runner Runner, paths ToolPaths) *Tools {
	return &Tools{runner: runner, paths: paths}
}

// CheckAvailable verifies that every named tool can be resolved.
func (t *Tools) CheckAvailable(tools ...string) error {
	for _, tool := range tools {
		if _, err := t.runner.LookPath(t.paths.resolve(tool)); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes a clean, ownership- and privilege-stripped dump of target to outPath.
func (t *Tools) Dump(ctx context.Context, target Target, format, outPath string) (*Result, error) {
	formatFlag := "p"
	if format == FormatCustom {
		formatFlag = "c"
	}

	args := append([]string{}, target.Args()...)
	args = append(args,
		"--clean",
		"--if-exists",
		"--no-owner",
		"--no-privileges",
		"-F", formatFlag,
		"-f", outPath,
	)

	return t.run(ctx, ToolPgDump, args, target.Env(), nil)
}

// ListArchive runs pg_restore --list against a custom-format archive.
// Nothing is restored; a zero exit means the table of contents is readable.
func (t *Tools) ListArchive(ctx context.Context, path string) (*Result, error) {
	return t.run(ctx, ToolPgRestore, []string{"--list", path}, nil, io.Discard)
}

// RestoreArchive applies a custom-format archive with pg_restore.
func (t *Tools) RestoreArchive(ctx context.Context, target Target, path string, singleTx bool) (*Result, error) {
	args := append([]string{}, target.Args()...)
	args = append(args,
		"--no-owner",
		"--no-privileges",
		"--clean",
		"--if-exists",
		"--exit-on-error",
	)
	if singleTx {
		args = append(args, "--single-transaction")
	}
	args = append(args, path)

	return t.run(ctx, ToolPgRestore, args, target.Env(), nil)
}

// ExecSQLFile applies a plain SQL file with psql, stopping on the first error.
func (t *Tools) ExecSQLFile(ctx context.Context, target Target, path string, singleTx bool) (*Result, error) {
	args := append([]string{}, target.Args()...)
	args = append(args,
		"-X",
		"-q",
		"-v", "ON_ERROR_STOP=1",
	)
	if singleTx {
		args = append(args, "--single-transaction")
	}
	args = append(args, "-f", path)

	return t.run(ctx, ToolPsql, args, target.Env(), io.Discard)
}

func (t *Tools) run(ctx context.Context, tool string, args, env []string, stdout io.Writer) (*Result, error) {
	res, err := t.runner.Run(ctx, Command{
		Name:   t.paths.resolve(tool),
		Args:   args,
		Env:    env,
		Stdout: stdout,
	})
	if err != nil {
		return res, fmt.Errorf("%s failed: %w", tool, err)
	}
	return res, nil
}
