// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package storage moves backup artifacts between the local backup directory
// and named storage locations.
//
// Every location implements Provider and is registered by name in a
// Registry: "local" (the backup directory itself), "s3", "gcs", "azure" and
// "google_drive". Remote providers are wrapped in a circuit breaker so a dead
// bucket fails fast instead of stalling every scheduled backup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Location names.
const (
	LocationLocal       = "local"
	LocationS3          = "s3"
	LocationGCS         = "gcs"
	LocationAzure       = "azure"
	LocationGoogleDrive = "google_drive"
)

var (
	// ErrStorageUploadFailed wraps every upload failure. Upload failures are
	// recorded per location and never fail a backup.
	ErrStorageUploadFailed = errors.New("storage upload failed")

	// ErrObjectNotFound is returned by Download when the location has no copy.
	ErrObjectNotFound = errors.New("object not found in storage location")

	// ErrUnknownLocation is returned for unregistered location names.
	ErrUnknownLocation = errors.New("unknown storage location")
)

// UploadRequest describes an artifact to upload.
type UploadRequest struct {
	// Filename is the object name at the location
	Filename string

	// FilePath is the local file to upload
	FilePath string

	// Metadata is attached to the remote object where supported
	Metadata map[string]string
}

// Provider is a named storage location.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Upload(ctx context.Context, req UploadRequest) error
	Download(ctx context.Context, filename, destPath string) error
	Delete(ctx context.Context, filename string) error
}

// Registry holds providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// MustGet returns the provider or ErrUnknownLocation.
func (r *Registry) MustGet(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, name)
	}
	return p, nil
}

// Names returns registered location names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Availability reports IsAvailable for every registered provider.
func (r *Registry) Availability(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, name := range r.Names() {
		p, _ := r.Get(name)
		out[name] = p.IsAvailable(ctx)
	}
	return out
}
