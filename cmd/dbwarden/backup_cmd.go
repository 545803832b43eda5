// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/validation"
)

func newBackupCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, verify and delete backups",
	}
	cmd.AddCommand(
		newBackupCreateCmd(opts),
		newBackupListCmd(opts),
		newBackupVerifyCmd(opts),
		newBackupDeleteCmd(opts),
	)
	return cmd
}

// createFlags mirror the POST /api/v1/backups body.
type createFlags struct {
	Description string   `json:"description" validate:"max=500"`
	Locations   []string `json:"storage_locations" validate:"omitempty,dive,storage_location"`
	Format      string   `json:"dump_format" validate:"omitempty,oneof=sql custom"`
}

func (f *createFlags) request() (backup.CreateRequest, error) {
	if err := validation.Err(f); err != nil {
		return backup.CreateRequest{}, err
	}
	return backup.CreateRequest{
		Type:             backup.TypeManual,
		Description:      f.Description,
		StorageLocations: f.Locations,
		DumpFormat:       backup.DumpFormat(f.Format),
	}, nil
}

func newBackupCreateCmd(opts *globalOptions) *cobra.Command {
	flags := &createFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup now",
		Long: `Dump the managed database, encode the artifact and upload it to the
requested locations (default: backup.storage_locations).

Examples:
  dbwarden backup create -d "before release 4.2"
  dbwarden backup create -l local,s3 --format custom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
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

			rec, err := a.engine.CreateBackup(ctx, req)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			p := opts.printer()
			if p.format == FormatJSON {
				return p.PrintJSON(rec)
			}
			p.PrintResult("Backup %s %s (%s, %s)", rec.ID, rec.Status, rec.Filename, FormatSize(rec.Size))
			for loc, msg := range rec.UploadErrors {
				p.PrintResult("  upload to %s failed: %s", loc, msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.Description, "description", "d", "", "Backup description")
	cmd.Flags().StringSliceVarP(&flags.Locations, "locations", "l", nil, "Storage locations (comma-separated)")
	cmd.Flags().StringVar(&flags.Format, "format", "", "Dump format (sql|custom)")
	return cmd
}

func newBackupListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			records, err := a.engine.ListBackups(ctx)
			if err != nil {
				return err
			}
			return opts.printer().PrintBackups(records)
		},
	}
}

func newBackupVerifyCmd(opts *globalOptions) *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a backup artifact",
		Long: `Check that a backup can be restored.

The default check decodes the artifact and validates the dump structure.
--deep restores it into a scratch database and compares table counts and
key table row counts with the backup metadata.`,
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
			if deep {
				res, err := a.verifier.VerifyDeep(ctx, args[0])
				if err != nil {
					return err
				}
				if p.format == FormatJSON {
					return p.PrintJSON(res)
				}
				p.PrintResult("%s: %s", validLabel(res.Valid), res.Message)
				for _, e := range res.Errors {
					p.PrintResult("  %s", e)
				}
				return verifyExit(res.Valid)
			}

			res, err := a.verifier.VerifyBackup(ctx, args[0])
			if err != nil {
				return err
			}
			if p.format == FormatJSON {
				if err := p.PrintJSON(res); err != nil {
					return err
				}
				return verifyExit(res.Valid)
			}
			p.PrintResult("%s: %s", validLabel(res.Valid), res.Message)
			return verifyExit(res.Valid)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "Restore into a scratch database and compare counts")
	return cmd
}

func validLabel(valid bool) string {
	if valid {
		return "VALID"
	}
	return "INVALID"
}

// verifyExit makes an invalid backup a non-zero exit.
func verifyExit(valid bool) error {
	if valid {
		return nil
	}
	return backup.ErrVerificationFailed
}

func newBackupDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a backup from every location and remove its record",
		Args:  cobra.ExactArgs(1),
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

			if err := a.engine.DeleteBackup(ctx, args[0]); err != nil {
				return err
			}
			opts.printer().PrintResult("Backup %s deleted", args[0])
			return nil
		},
	}
}
