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
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage location.
type GCSConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Bucket  string `koanf:"bucket" json:"bucket"`
	Prefix  string `koanf:"prefix" json:"prefix"`

	// Credentials is a service account JSON document or a path to one.
	// Empty uses application default credentials.
	Credentials string `koanf:"credentials" json:"-"`
}

type gcsBackend struct {
	client *gcs.Client
	bucket string
}

// NewGCSProvider creates the "gcs" location.
func NewGCSProvider(ctx context.Context, cfg GCSConfig) (*ObjectProvider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("GCS bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" {
		creds, err := credentialsJSON(cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to read GCS credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return newObjectProvider(LocationGCS, cfg.Prefix, &gcsBackend{client: client, bucket: cfg.Bucket}), nil
}

// credentialsJSON accepts inline JSON or a file path.
func credentialsJSON(value string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(value), "{") {
		return []byte(value), nil
	}
	return os.ReadFile(value) //nolint:gosec // Path comes from configuration
}

func (b *gcsBackend) put(ctx context.Context, key string, f *os.File, _ int64, metadata map[string]string) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.Metadata = metadata
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, f); err != nil {
		w.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (b *gcsBackend) get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, errBackendNotFound
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return r, nil
}

func (b *gcsBackend) remove(ctx context.Context, key string) error {
	if err := b.client.Bucket(b.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return errBackendNotFound
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

func (b *gcsBackend) ping(ctx context.Context) error {
	_, err := b.client.Bucket(b.bucket).Attrs(ctx)
	return err
}
