// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/database/query"
)

// PostgresStore implements Store on the dbwarden_audit_log table.
type PostgresStore struct {
	q database.Querier
}

// NewPostgresStore creates a store. The table is created by the record-store
// migrations.
func NewPostgresStore(q database.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

const selectEntryColumns = `SELECT id, schedule_id, COALESCE(backup_id, ''), status, timestamp, COALESCE(error_message, ''), metadata FROM dbwarden_audit_log`

// Save persists an entry.
func (s *PostgresStore) Save(ctx context.Context, entry *Entry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	if entry.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO dbwarden_audit_log (id, schedule_id, backup_id, status, timestamp, error_message, metadata)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7)`,
		entry.ID, entry.ScheduleID, entry.BackupID, string(entry.Status),
		entry.Timestamp, entry.ErrorMessage, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	entry, err := scanEntry(s.q.QueryRow(ctx, selectEntryColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return entry, nil
}

// List returns entries matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	wb := query.NewWhereBuilder().
		AddEqual("schedule_id", filter.ScheduleID).
		AddEqual("backup_id", filter.BackupID).
		AddEqual("status", string(filter.Status)).
		AddSince("timestamp", filter.Since)

	where, _ := wb.BuildWithPrefix()
	sql := selectEntryColumns + where + " ORDER BY timestamp DESC" + wb.Limit(filter.Limit)

	rows, err := s.q.Query(ctx, sql, wb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e      Entry
		status string
		ts     time.Time
		meta   []byte
	)
	if err := row.Scan(&e.ID, &e.ScheduleID, &e.BackupID, &status, &ts, &e.ErrorMessage, &meta); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.Timestamp = ts.UTC()
	if len(meta) > 0 && string(meta) != "{}" {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &e, nil
}
