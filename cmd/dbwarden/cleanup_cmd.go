// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than the retention window",
		Long: `Delete backups older than the retention window from every location.

The window defaults to backup.retention_days. A backup that cannot be
removed from one location is reported and the run continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must be positive")
			}
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if days == 0 {
				days = cfg.Backup.RetentionDays
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx, cfg, path)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.engine.CleanupExpired(ctx, days)
			if err != nil {
				return err
			}

			p := opts.printer()
			if p.format == FormatJSON {
				return p.PrintJSON(summary)
			}
			p.PrintResult("Deleted %d backup(s) older than %s (%d days)",
				len(summary.Deleted), summary.Cutoff.Format("2006-01-02 15:04"), summary.RetentionDays)
			for _, name := range summary.Filenames {
				p.PrintResult("  %s", name)
			}
			ids := make([]string, 0, len(summary.Errors))
			for id := range summary.Errors {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				p.PrintResult("  %s: %s", id, summary.Errors[id])
			}
			if len(summary.Errors) > 0 {
				return fmt.Errorf("%d backup(s) could not be deleted", len(summary.Errors))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default: backup.retention_days)")
	return cmd
}
