// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"strings"
	"time"

	"github.com/tomtom215/dbwarden/internal/artifact"
	"github.com/tomtom215/dbwarden/internal/process"
)

// Type indicates what initiated the backup
type Type string

const (
	// TypeManual indicates the backup was requested through the API or CLI
	TypeManual Type = "manual"

	// TypeScheduled indicates the backup was triggered by a schedule
	TypeScheduled Type = "scheduled"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeManual || t == TypeScheduled
}

// Status represents the current state of a backup record
type Status string

const (
	// StatusCreating indicates pg_dump is running
	StatusCreating Status = "creating"

	// StatusCompleted indicates the artifact exists locally with size and checksum
	StatusCompleted Status = "completed"

	// StatusUploading indicates a remote upload is in progress
	StatusUploading Status = "uploading"

	// StatusUploaded indicates at least one remote copy exists
	StatusUploaded Status = "uploaded"

	// StatusFailed indicates the dump failed; terminal
	StatusFailed Status = "failed"
)

var transitions = map[Status][]Status{
	StatusCreating:  {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusUploading},
	StatusUploading: {StatusUploaded, StatusCompleted, StatusFailed},
	StatusUploaded:  {StatusUploading},
}

// CanTransition reports whether a record may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Restorable reports whether the artifact is complete.
func (s Status) Restorable() bool {
	return s == StatusCompleted || s == StatusUploaded || s == StatusUploading
}

// DumpFormat is the pg_dump output format
type DumpFormat string

const (
	// FormatSQL is a plain-text SQL script applied with psql
	FormatSQL DumpFormat = "sql"

	// FormatCustom is a pg_dump custom archive applied with pg_restore
	FormatCustom DumpFormat = "custom"
)

// Valid reports whether f is a known format.
func (f DumpFormat) Valid() bool {
	return f == FormatSQL || f == FormatCustom
}

// Extension returns the base file extension for the format.
func (f DumpFormat) Extension() string {
	if f == FormatCustom {
		return ".dump"
	}
	return ".sql"
}

// ToolFormat maps to the pg_dump -F value.
func (f DumpFormat) ToolFormat() string {
	if f == FormatCustom {
		return process.FormatCustom
	}
	return process.FormatPlain
}

// FormatFromFilename infers the dump format from an artifact name.
func FormatFromFilename(name string) DumpFormat {
	if strings.HasSuffix(artifact.StripEncoding(name), ".dump") {
		return FormatCustom
	}
	return FormatSQL
}

// Metadata describes the source database and the artifact encoding
type Metadata struct {
	// Database size in bytes at backup time
	DatabaseSize int64 `json:"database_size"`

	// Number of user tables
	TableCount int `json:"table_count"`

	// Approximate total row count from planner statistics
	ApproxRowCount int64 `json:"approx_row_count"`

	// Whether the artifact is encrypted
	Encrypted bool `json:"encrypted"`

	// Compression algorithm (none, gzip, zstd, lz4)
	Compression string `json:"compression"`

	// Version of the application that produced the backup
	AppVersion string `json:"app_version"`

	// Source server version string
	EngineVersion string `json:"engine_version"`

	// Source instance identifier
	InstanceID string `json:"instance_id"`

	// Dump format (sql, custom)
	DumpFormat DumpFormat `json:"dump_format"`

	// SHA-256 over the ordered (schema, table, column, type, nullable) tuples
	SchemaChecksum string `json:"schema_checksum"`

	// Exact row counts of the key tables
	KeyTableRowCounts map[string]int64 `json:"key_table_row_counts,omitempty"`
}

// Record is the persisted description of a backup
type Record struct {
	// Unique identifier (UUID)
	ID string `json:"id"`

	// Artifact file name inside the backup directory
	Filename string `json:"filename"`

	// What initiated the backup
	Type Type `json:"type"`

	// User-provided description
	Description string `json:"description,omitempty"`

	// Size of the stored artifact in bytes
	Size int64 `json:"size"`

	// When the backup was started
	CreatedAt time.Time `json:"created_at"`

	// When the artifact was completed (or the dump failed)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Current status
	Status Status `json:"status"`

	// Locations holding a copy
	StorageLocations []string `json:"storage_locations"`

	// SHA-256 hex over the stored artifact bytes
	Checksum string `json:"checksum,omitempty"`

	// Error message if the backup failed
	Error string `json:"error,omitempty"`

	// Producing schedule, empty for manual backups
	ScheduleID string `json:"schedule_id,omitempty"`

	// Per-location upload errors
	UploadErrors map[string]string `json:"upload_errors,omitempty"`

	// Source database and encoding details
	Metadata Metadata `json:"metadata"`
}

// HasLocation reports whether name holds a copy.
func (r *Record) HasLocation(name string) bool {
	for _, l := range r.StorageLocations {
		if l == name {
			return true
		}
	}
	return false
}

// Format returns the dump format of the record.
func (r *Record) Format() DumpFormat {
	if r.Metadata.DumpFormat.Valid() {
		return r.Metadata.DumpFormat
	}
	return FormatFromFilename(r.Filename)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.StorageLocations = append([]string(nil), r.StorageLocations...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.UploadErrors != nil {
		c.UploadErrors = make(map[string]string, len(r.UploadErrors))
		for k, v := range r.UploadErrors {
			c.UploadErrors[k] = v
		}
	}
	if r.Metadata.KeyTableRowCounts != nil {
		c.Metadata.KeyTableRowCounts = make(map[string]int64, len(r.Metadata.KeyTableRowCounts))
		for k, v := range r.Metadata.KeyTableRowCounts {
			c.Metadata.KeyTableRowCounts[k] = v
		}
	}
	return &c
}

// CreateRequest describes a backup to create
type CreateRequest struct {
	// Manual or scheduled
	Type Type `json:"type"`

	// Free-form description
	Description string `json:"description,omitempty" validate:"max=500"`

	// Locations to upload to; empty uses the configured defaults
	StorageLocations []string `json:"storage_locations,omitempty"`

	// Overrides the configured dump format
	DumpFormat DumpFormat `json:"dump_format,omitempty" validate:"omitempty,oneof=sql custom"`

	// Producing schedule
	ScheduleID string `json:"schedule_id,omitempty"`
}

// VerifyResult is the outcome of a shallow verification
type VerifyResult struct {
	Valid   bool           `json:"valid"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DeepVerifyResult is the outcome of a deep verification
type DeepVerifyResult struct {
	Valid   bool                     `json:"valid"`
	Message string                   `json:"message"`
	Details map[string]any           `json:"details,omitempty"`
	Errors  []string                 `json:"errors,omitempty"`
	Timings map[string]time.Duration `json:"timings"`
}

// CleanupSummary is the outcome of a retention run
type CleanupSummary struct {
	RetentionDays int               `json:"retention_days"`
	Cutoff        time.Time         `json:"cutoff"`
	Deleted       []string          `json:"deleted"`
	Filenames     []string          `json:"filenames"`
	Errors        map[string]string `json:"errors,omitempty"`
}
