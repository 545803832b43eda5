// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalProvider is the backup directory. Backups are written there directly,
// so Upload of a file already in the directory is a no-op.
type LocalProvider struct {
	dir string
}

// NewLocalProvider creates a provider rooted at dir.
func NewLocalProvider(dir string) *LocalProvider {
	return &LocalProvider{dir: dir}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return LocationLocal }

// Dir returns the backup directory.
func (p *LocalProvider) Dir() string { return p.dir }

// Path returns the absolute path of filename inside the directory.
func (p *LocalProvider) Path(filename string) string {
	return filepath.Join(p.dir, filepath.Base(filename))
}

// IsAvailable reports whether the directory exists and is a directory.
func (p *LocalProvider) IsAvailable(context.Context) bool {
	info, err := os.Stat(p.dir)
	return err == nil && info.IsDir()
}

// Upload copies req.FilePath into the directory unless it is already there.
func (p *LocalProvider) Upload(_ context.Context, req UploadRequest) error {
	dest := p.Path(req.Filename)
	if sameFile(req.FilePath, dest) {
		return nil
	}
	if err := copyFile(req.FilePath, dest); err != nil {
		return fmt.Errorf("%w: local: %v", ErrStorageUploadFailed, err)
	}
	return nil
}

// Download copies filename out of the directory.
func (p *LocalProvider) Download(_ context.Context, filename, destPath string) error {
	src := p.Path(filename)
	if sameFile(src, destPath) {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, filename)
		}
		return nil
	}
	if err := copyFile(src, destPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, filename)
		}
		return err
	}
	return nil
}

// Delete removes filename; a missing file is not an error.
func (p *LocalProvider) Delete(_ context.Context, filename string) error {
	if err := os.Remove(p.Path(filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete local backup %s: %w", filename, err)
	}
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec // Paths come from the backup directory
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only file

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // Paths come from the backup directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()    //nolint:errcheck // Best effort cleanup
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return err
	}
	return os.Rename(tmp, dest)
}
