// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/dbwarden/internal/database"
)

// PostgresStore implements RecordStore on the dbwarden_backups table.
//
// The table lives in the managed database, so it is replaced by a restore;
// the restore orchestrator re-runs migrations and re-saves the restored
// record afterwards.
type PostgresStore struct {
	q database.Querier
}

// NewPostgresStore creates a store over q.
func NewPostgresStore(q database.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

const selectRecordColumns = `SELECT id, filename, type, description, size_bytes, status,
	storage_locations, checksum, COALESCE(error_message, ''), COALESCE(schedule_id, ''),
	upload_errors, metadata, created_at, completed_at
	FROM dbwarden_backups`

// Save inserts or replaces a record.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	locations, err := json.Marshal(nonNilStrings(rec.StorageLocations))
	if err != nil {
		return fmt.Errorf("marshal storage locations: %w", err)
	}
	uploadErrors, err := json.Marshal(nonNilMap(rec.UploadErrors))
	if err != nil {
		return fmt.Errorf("marshal upload errors: %w", err)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO dbwarden_backups (id, filename, type, description, size_bytes, status,
			storage_locations, checksum, error_message, schedule_id, upload_errors, metadata,
			created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14, now())
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			description = EXCLUDED.description,
			size_bytes = EXCLUDED.size_bytes,
			status = EXCLUDED.status,
			storage_locations = EXCLUDED.storage_locations,
			checksum = EXCLUDED.checksum,
			error_message = EXCLUDED.error_message,
			upload_errors = EXCLUDED.upload_errors,
			metadata = EXCLUDED.metadata,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`,
		rec.ID, rec.Filename, string(rec.Type), rec.Description, rec.Size, string(rec.Status),
		locations, rec.Checksum, rec.Error, rec.ScheduleID, uploadErrors, meta,
		rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

// Get returns the record or ErrBackupNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.q.QueryRow(ctx, selectRecordColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup record: %w", err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.q.Query(ctx, selectRecordColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backup records: %w", err)
	}
	return records, nil
}

// Delete removes the record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM dbwarden_backups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                         Record
		typ, status                 string
		locations, uploadErrs, meta []byte
		createdAt                   time.Time
		completedAt                 *time.Time
	)
	if err := row.Scan(&rec.ID, &rec.Filename, &typ, &rec.Description, &rec.Size, &status,
		&locations, &rec.Checksum, &rec.Error, &rec.ScheduleID,
		&uploadErrs, &meta, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	rec.Type = Type(typ)
	rec.Status = Status(status)
	rec.CreatedAt = createdAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		rec.CompletedAt = &t
	}
	if err := json.Unmarshal(locations, &rec.StorageLocations); err != nil {
		return nil, fmt.Errorf("decode storage locations: %w", err)
	}
	if err := json.Unmarshal(uploadErrs, &rec.UploadErrors); err != nil {
		return nil, fmt.Errorf("decode upload errors: %w", err)
	}
	if len(rec.UploadErrors) == 0 {
		rec.UploadErrors = nil
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &rec, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
