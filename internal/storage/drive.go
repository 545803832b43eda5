// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveConfig configures the Google Drive location.
type DriveConfig struct {
	Enabled  bool   `koanf:"enabled" json:"enabled"`
	FolderID string `koanf:"folder_id" json:"folder_id"`

	// Credentials is a service account JSON document or a path to one.
	Credentials string `koanf:"credentials" json:"-"`
}

// DriveProvider stores artifacts in a single Google Drive folder, looked up
// by file name.
type DriveProvider struct {
	srv      *drive.Service
	folderID string
}

// NewDriveProvider creates the "google_drive" location.
func NewDriveProvider(ctx context.Context, cfg DriveConfig) (*DriveProvider, error) {
	if cfg.FolderID == "" {
		return nil, fmt.Errorf("google drive folder_id is required")
	}

	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if cfg.Credentials != "" {
		creds, err := credentialsJSON(cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to read google drive credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google drive client: %w", err)
	}
	return &DriveProvider{srv: srv, folderID: cfg.FolderID}, nil
}

// Name implements Provider.
func (p *DriveProvider) Name() string { return LocationGoogleDrive }

// IsAvailable checks that the folder is reachable.
func (p *DriveProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.srv.Files.Get(p.folderID).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	return err == nil
}

func (p *DriveProvider) findFileID(ctx context.Context, filename string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeDriveQuery(filename), escapeDriveQuery(p.folderID))
	list, err := p.srv.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to search google drive: %w", err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrObjectNotFound, LocationGoogleDrive, filename)
	}
	return list.Files[0].Id, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}

// Upload creates the file in the folder.
func (p *DriveProvider) Upload(ctx context.Context, req UploadRequest) error {
	f, err := os.Open(req.FilePath) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, LocationGoogleDrive, err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	meta := &drive.File{
		Name:       req.Filename,
		Parents:    []string{p.folderID},
		Properties: req.Metadata,
	}
	if _, err := p.srv.Files.Create(meta).Media(f).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, LocationGoogleDrive, err)
	}
	return nil
}

// Download fetches the file by name.
func (p *DriveProvider) Download(ctx context.Context, filename, destPath string) error {
	id, err := p.findFileID(ctx, filename)
	if err != nil {
		return err
	}
	resp, err := p.srv.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download %s from google drive: %w", filename, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only stream

	return writeStream(destPath, resp.Body)
}

// Delete removes the file; a missing file is not an error.
func (p *DriveProvider) Delete(ctx context.Context, filename string) error {
	id, err := p.findFileID(ctx, filename)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return err
	}
	if err := p.srv.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete %s from google drive: %w", filename, err)
	}
	return nil
}
