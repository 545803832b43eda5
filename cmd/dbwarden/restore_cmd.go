// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"context"
	"fmt"
	"io"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/tomtom215/dbwarden/internal/restore"
)

// restoreFlags are the restore command options.
type restoreFlags struct {
	confirm      string
	dropDatabase bool
	email        string
}

func (f restoreFlags) options() restore.Options {
	opts := restore.Options{
		UserEmail:        f.email,
		ConfirmationText: f.confirm,
		DropDatabase:     f.dropDatabase,
	}
	if u, err := user.Current(); err == nil {
		opts.UserID = "cli:" + u.Username
	}
	return opts
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	flags := restoreFlags{}
	cmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore the managed database from a backup",
		Long: `Restore the managed database from a backup.

The backup is verified first. Plain SQL dumps without database-level
statements are applied in a single transaction while the database stays
online. Custom-format archives, dumps that touch roles or databases, and
--drop-database use the exclusive path: maintenance mode is enabled, the
scheduler is paused, connections are terminated and the database is
recreated before the dump is applied.

Examples:
  dbwarden restore 3f1c2a7e-... --confirm RESTORE
  dbwarden restore 3f1c2a7e-... --confirm RESTORE --drop-database`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx, cfg, path)
			if err != nil {
				return err
			}
			defer a.Close()

			p := opts.printer()
			if p.format == FormatTable {
				a.restores.AddObserver(progressPrinter(cmd.ErrOrStderr()))
			}

			res, err := a.restores.RestoreBackup(ctx, args[0], flags.options())
			if p.format == FormatJSON && res != nil {
				if perr := p.PrintJSON(res); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("restore %s failed: %w", res.RestoreID, err)
			}
			p.PrintResult("Restore %s completed: %s", res.RestoreID, res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.confirm, "confirm", "", "Confirmation text (must be "+restore.ConfirmationText+" when required)")
	cmd.Flags().BoolVar(&flags.dropDatabase, "drop-database", false, "Force the exclusive drop-and-recreate path")
	cmd.Flags().StringVar(&flags.email, "email", "", "Operator email recorded in the audit log")
	return cmd
}

// progressPrinter writes restore progress lines to w.
func progressPrinter(w io.Writer) restore.Observer {
	return restore.ObserverFunc(func(_ context.Context, ev restore.ProgressEvent) {
		fmt.Fprintf(w, "[%3d%%] %-12s %s\n", ev.Percent, ev.Status, ev.Message)
	})
}
