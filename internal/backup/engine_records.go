// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/dbwarden/internal/artifact"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/storage"
)

// maxParallelDeletes bounds concurrent remote deletions per backup.
const maxParallelDeletes = 4

// GetBackup returns a record by ID.
func (e *Engine) GetBackup(ctx context.Context, id string) (*Record, error) {
	return e.store.Get(ctx, id)
}

// ListBackups returns all records, newest first.
func (e *Engine) ListBackups(ctx context.Context) ([]*Record, error) {
	return e.store.List(ctx)
}

// DeleteBackup removes the local artifact, every remote copy and the record.
// If a remote delete fails the record is kept with the remaining locations
// so the delete can be retried.
func (e *Engine) DeleteBackup(ctx context.Context, id string) error {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return e.deleteRecord(ctx, rec)
}

func (e *Engine) deleteRecord(ctx context.Context, rec *Record) error {
	if err := os.Remove(e.LocalPath(rec)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove local artifact: %w", err)
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		g      errgroup.Group
	)
	g.SetLimit(maxParallelDeletes)
	for _, name := range rec.StorageLocations {
		if name == storage.LocationLocal {
			continue
		}
		g.Go(func() error {
			provider, err := e.providers.MustGet(name)
			if err == nil {
				err = provider.Delete(ctx, rec.Filename)
			}
			if err != nil {
				mu.Lock()
				failed[name] = err
				mu.Unlock()
			}
			return err
		})
	}
	g.Wait() //nolint:errcheck // Per-location errors are collected in failed

	if len(failed) > 0 {
		remaining := make([]string, 0, len(failed))
		errs := make([]error, 0, len(failed))
		for name, err := range failed {
			remaining = append(remaining, name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		sort.Strings(remaining)
		rec.StorageLocations = remaining
		if err := e.store.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
		return fmt.Errorf("failed to delete remote copies of %s: %w", rec.ID, errors.Join(errs...))
	}

	if err := e.store.Delete(ctx, rec.ID); err != nil {
		return err
	}
	logging.Info().Str("backup_id", rec.ID).Str("filename", rec.Filename).Msg("Backup deleted")
	return nil
}

// EnsureLocal returns the local artifact path, downloading it from the first
// reachable remote location when it is missing.
func (e *Engine) EnsureLocal(ctx context.Context, rec *Record) (string, error) {
	path := e.LocalPath(rec)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	var errs []error
	for _, name := range rec.StorageLocations {
		if name == storage.LocationLocal {
			continue
		}
		provider, err := e.providers.MustGet(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !provider.IsAvailable(ctx) {
			errs = append(errs, fmt.Errorf("%s: location unavailable", name))
			continue
		}
		if err := provider.Download(ctx, rec.Filename, path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		logging.Info().Str("backup_id", rec.ID).Str("location", name).Msg("Backup downloaded")
		return path, nil
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("%w: artifact %s is not stored anywhere", ErrBackupNotFound, rec.Filename)
	}
	return "", fmt.Errorf("failed to fetch artifact %s: %w", rec.Filename, errors.Join(errs...))
}

// OpenPlain materializes the decoded dump next to the artifact and returns
// its path. cleanup removes any temporary file and is never nil.
func (e *Engine) OpenPlain(ctx context.Context, rec *Record) (path string, cleanup func(), err error) {
	cleanup = func() {}
	local, err := e.EnsureLocal(ctx, rec)
	if err != nil {
		return "", cleanup, err
	}
	if artifact.DetectEncoding(rec.Filename).Identity() {
		return local, cleanup, nil
	}

	cfg := e.Config()
	decoded := filepath.Join(cfg.BackupDir, ".decoded-"+rec.ID+rec.Format().Extension())
	if err := artifact.DecodeFile(local, decoded, cfg.DecryptionKey()); err != nil {
		return "", cleanup, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return decoded, func() {
		os.Remove(decoded) //nolint:errcheck // Best effort cleanup
	}, nil
}

// ReconcileRecords re-saves records captured before the record table was
// replaced (e.g. by a restore) and removes records that were not among
// them.
func (e *Engine) ReconcileRecords(ctx context.Context, snapshot []*Record) error {
	known := make(map[string]bool, len(snapshot))
	var errs []error
	for _, rec := range snapshot {
		known[rec.ID] = true
		if err := e.store.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	current, err := e.store.List(ctx)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, rec := range current {
		if known[rec.ID] {
			continue
		}
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func joinErrorMap(errs map[string]string) string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+errs[name])
	}
	return strings.Join(parts, "; ")
}
