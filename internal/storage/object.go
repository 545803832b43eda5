// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
object.go - Object Store Providers

S3, GCS and Azure Blob all reduce to the same four calls: put a file, open an
object for reading, delete an object, and ping the bucket. Each SDK is
wrapped in a small objectBackend; ObjectProvider adds key prefixing,
ErrStorageUploadFailed wrapping and atomic downloads on top.
*/

//nolint:staticcheck // File documentation, not package doc
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// errBackendNotFound is returned by backends for missing objects.
var errBackendNotFound = errors.New("not found")

// objectBackend is the minimal surface of an object store SDK.
type objectBackend interface {
	put(ctx context.Context, key string, f *os.File, size int64, metadata map[string]string) error
	get(ctx context.Context, key string) (io.ReadCloser, error)
	remove(ctx context.Context, key string) error
	ping(ctx context.Context) error
}

// ObjectProvider adapts an object store to Provider.
type ObjectProvider struct {
	name    string
	prefix  string
	backend objectBackend
}

func newObjectProvider(name, prefix string, backend objectBackend) *ObjectProvider {
	return &ObjectProvider{
		name:    name,
		prefix:  strings.Trim(prefix, "/"),
		backend: backend,
	}
}

// Name implements Provider.
func (p *ObjectProvider) Name() string { return p.name }

func (p *ObjectProvider) key(filename string) string {
	if p.prefix == "" {
		return filename
	}
	return path.Join(p.prefix, filename)
}

// IsAvailable pings the bucket or container.
func (p *ObjectProvider) IsAvailable(ctx context.Context) bool {
	if err := p.backend.ping(ctx); err != nil {
		logging.Debug().Err(err).Str("location", p.name).Msg("Storage location unavailable")
		return false
	}
	return true
}

// Upload streams req.FilePath to the store.
func (p *ObjectProvider) Upload(ctx context.Context, req UploadRequest) error {
	f, err := os.Open(req.FilePath) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, p.name, err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, p.name, err)
	}

	if err := p.backend.put(ctx, p.key(req.Filename), f, info.Size(), req.Metadata); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, p.name, err)
	}
	return nil
}

// Download writes the object to destPath via a temporary sibling file.
func (p *ObjectProvider) Download(ctx context.Context, filename, destPath string) error {
	rc, err := p.backend.get(ctx, p.key(filename))
	if err != nil {
		if errors.Is(err, errBackendNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, p.name, filename)
		}
		return fmt.Errorf("failed to download %s from %s: %w", filename, p.name, err)
	}
	defer rc.Close() //nolint:errcheck // Read-only stream

	return writeStream(destPath, rc)
}

// Delete removes the object; a missing object is not an error.
func (p *ObjectProvider) Delete(ctx context.Context, filename string) error {
	if err := p.backend.remove(ctx, p.key(filename)); err != nil && !errors.Is(err, errBackendNotFound) {
		return fmt.Errorf("failed to delete %s from %s: %w", filename, p.name, err)
	}
	return nil
}

func writeStream(destPath string, r io.Reader) error {
	tmp := destPath + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()    //nolint:errcheck // Best effort cleanup
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write download: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to close download: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}
