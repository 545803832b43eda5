// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
retention.go - Backup Retention

CleanupExpired deletes every backup whose created_at is strictly older than
now minus retention_days. Deletion is best-effort per backup: one failure is
recorded in the summary and the run continues. Each run produces a single
audit entry under the "cleanup" schedule id.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

// CleanupExpired removes backups older than retentionDays. A non-positive
// value uses the configured retention.
func (e *Engine) CleanupExpired(ctx context.Context, retentionDays int) (*CleanupSummary, error) {
	if retentionDays <= 0 {
		retentionDays = e.Config().RetentionDays
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive")
	}

	cutoff := e.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	summary := &CleanupSummary{
		RetentionDays: retentionDays,
		Cutoff:        cutoff,
		Deleted:       []string{},
		Filenames:     []string{},
	}

	records, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups for cleanup: %w", err)
	}

	for _, rec := range records {
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := e.deleteRecord(ctx, rec); err != nil {
			if summary.Errors == nil {
				summary.Errors = make(map[string]string)
			}
			summary.Errors[rec.ID] = err.Error()
			logging.Warn().Err(err).Str("backup_id", rec.ID).Str("filename", rec.Filename).Msg("Failed to delete expired backup")
			continue
		}
		summary.Deleted = append(summary.Deleted, rec.ID)
		summary.Filenames = append(summary.Filenames, rec.Filename)
		logging.Info().
			Str("backup_id", rec.ID).
			Str("filename", rec.Filename).
			Time("created_at", rec.CreatedAt).
			Msg("Expired backup deleted")
	}

	metrics.RecordRetentionDeleted(len(summary.Deleted))
	logging.Info().
		Int("retention_days", retentionDays).
		Time("cutoff", cutoff).
		Int("deleted", len(summary.Deleted)).
		Int("errors", len(summary.Errors)).
		Msg("Retention cleanup finished")

	e.recordCleanupAudit(ctx, summary)
	return summary, nil
}

func (e *Engine) recordCleanupAudit(ctx context.Context, summary *CleanupSummary) {
	if e.audit == nil {
		return
	}
	status := audit.StatusSuccess
	var message string
	switch {
	case len(summary.Errors) > 0 && len(summary.Deleted) == 0:
		status = audit.StatusFailed
		message = joinErrorMap(summary.Errors)
	case len(summary.Errors) > 0:
		status = audit.StatusPartial
		message = joinErrorMap(summary.Errors)
	}
	e.audit.Record(ctx, &audit.Entry{
		ScheduleID:   audit.ScheduleCleanup,
		Status:       status,
		ErrorMessage: message,
		Metadata: map[string]any{
			"retention_days": summary.RetentionDays,
			"cutoff":         summary.Cutoff,
			"deleted":        summary.Deleted,
			"filenames":      summary.Filenames,
		},
	})
}
