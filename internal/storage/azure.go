// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig configures an Azure Blob Storage location.
type AzureConfig struct {
	Enabled    bool   `koanf:"enabled" json:"enabled"`
	Account    string `koanf:"account" json:"account"`
	AccountKey string `koanf:"account_key" json:"-"`
	Container  string `koanf:"container" json:"container"`
	Prefix     string `koanf:"prefix" json:"prefix"`

	// ServiceURL overrides https://<account>.blob.core.windows.net/ (Azurite).
	ServiceURL string `koanf:"service_url" json:"service_url"`
}

type azureBackend struct {
	client    *azblob.Client
	container string
}

// NewAzureProvider creates the "azure" location.
func NewAzureProvider(cfg AzureConfig) (*ObjectProvider, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure container name is required")
	}
	if cfg.Account == "" {
		return nil, fmt.Errorf("azure storage account is required")
	}

	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return newObjectProvider(LocationAzure, cfg.Prefix, &azureBackend{client: client, container: cfg.Container}), nil
}

func (b *azureBackend) put(ctx context.Context, key string, f *os.File, _ int64, metadata map[string]string) error {
	meta := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		meta[k] = &v
	}
	_, err := b.client.UploadFile(ctx, b.container, key, f, &azblob.UploadFileOptions{Metadata: meta})
	if err != nil {
		return fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}
	return nil
}

func (b *azureBackend) get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, errBackendNotFound
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

func (b *azureBackend) remove(ctx context.Context, key string) error {
	if _, err := b.client.DeleteBlob(ctx, b.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return errBackendNotFound
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

func (b *azureBackend) ping(ctx context.Context) error {
	_, err := b.client.ServiceClient().NewContainerClient(b.container).GetProperties(ctx, nil)
	return err
}
