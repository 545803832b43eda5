// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
verify.go - Backup Verification

Shallow verification (VerifyBackup) is read-only and cheap:
  - the artifact exists locally
  - its size and SHA-256 checksum match the record
  - the decoded content looks like a pg_dump: plain dumps carry a pg_dump
    marker in the first 8 KiB, custom archives start with "PGDMP" and
    pg_restore --list succeeds

Deep verification (VerifyDeep) restores the artifact into a throwaway
database named dbwarden_verify_<8 hex>, compares table and key-table row
counts against the record, and always drops the scratch database. The
production database is never touched by either mode.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dbwarden/internal/artifact"
	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

const (
	// formatHeadSize is how much decoded content the format check reads
	formatHeadSize = 8 * 1024

	// ScratchPrefix names deep verification databases
	ScratchPrefix = "dbwarden_verify_"

	cleanupTimeout = 30 * time.Second
)

var (
	plainMarkers = [][]byte{
		[]byte("PostgreSQL database dump"),
		[]byte("SET statement_timeout"),
		[]byte("pg_catalog.set_config"),
	}
	customMagic = []byte("PGDMP")
)

// Err returns nil for a valid result and ErrVerificationFailed otherwise.
func (r *VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrVerificationFailed, r.Message)
}

// ScratchAdmin manages throwaway databases. *database.Admin implements it.
type ScratchAdmin interface {
	Params() database.ConnParams
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
	TerminateConnections(ctx context.Context, name string) (int64, error)
	WithDatabase(ctx context.Context, name string, fn func(database.Querier) error) error
}

// Verifier checks backup artifacts.
type Verifier struct {
	engine  *Engine
	admin   ScratchAdmin
	applier *Applier
	newName func() string
}

// NewVerifier creates a Verifier. admin may be nil when deep verification
// is not used.
func NewVerifier(engine *Engine, admin ScratchAdmin, applier *Applier) *Verifier {
	if applier == nil {
		applier = NewApplier(engine.Tools())
	}
	return &Verifier{
		engine:  engine,
		admin:   admin,
		applier: applier,
		newName: scratchName,
	}
}

func scratchName() string {
	return ScratchPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// VerifyBackup runs the shallow checks. A failed check is reported through
// the result; err is reserved for lookup failures.
func (v *Verifier) VerifyBackup(ctx context.Context, id string) (*VerifyResult, error) {
	rec, err := v.engine.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}
	res := v.verifyRecord(ctx, rec)
	metrics.RecordVerification("shallow", verificationOutcome(res.Valid))

	logging.Info().
		Str("backup_id", rec.ID).
		Bool("valid", res.Valid).
		Str("message", res.Message).
		Msg("Backup verified")
	return res, nil
}

func (v *Verifier) verifyRecord(ctx context.Context, rec *Record) *VerifyResult {
	details := map[string]any{
		"filename": rec.Filename,
		"format":   string(rec.Format()),
	}
	invalid := func(format string, args ...any) *VerifyResult {
		return &VerifyResult{Valid: false, Message: fmt.Sprintf(format, args...), Details: details}
	}

	if !rec.Status.Restorable() {
		return invalid("backup status is %s", rec.Status)
	}

	path := v.engine.LocalPath(rec)
	info, err := os.Stat(path)
	if err != nil {
		return invalid("artifact not found locally: %v", err)
	}
	details["size"] = info.Size()
	if info.Size() != rec.Size {
		return invalid("size mismatch: expected %d bytes, found %d", rec.Size, info.Size())
	}

	checksum, err := artifact.FileChecksum(path)
	if err != nil {
		return invalid("failed to checksum artifact: %v", err)
	}
	details["checksum"] = checksum
	if checksum != rec.Checksum {
		return invalid("checksum mismatch: expected %s, found %s", rec.Checksum, checksum)
	}

	if err := v.checkFormat(ctx, rec, path); err != nil {
		return invalid("%v", err)
	}
	return &VerifyResult{Valid: true, Message: "backup is valid", Details: details}
}

func (v *Verifier) checkFormat(ctx context.Context, rec *Record, path string) error {
	cfg := v.engine.Config()
	r, err := artifact.Open(path, cfg.DecryptionKey())
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	head := make([]byte, formatHeadSize)
	n, err := io.ReadFull(r, head)
	r.Close() //nolint:errcheck // Read-only stream
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	head = head[:n]

	if rec.Format() == FormatSQL {
		for _, marker := range plainMarkers {
			if bytes.Contains(head, marker) {
				return nil
			}
		}
		return fmt.Errorf("no pg_dump marker in the first %d bytes", formatHeadSize)
	}

	if !bytes.HasPrefix(head, customMagic) {
		return fmt.Errorf("artifact is not a pg_dump custom archive")
	}

	plain, cleanup, err := v.engine.OpenPlain(ctx, rec)
	if err != nil {
		return err
	}
	defer cleanup()
	if _, err := v.engine.Tools().ListArchive(ctx, plain); err != nil {
		return fmt.Errorf("archive table of contents is unreadable: %w", err)
	}
	return nil
}

// VerifyDeep restores the artifact into a scratch database and compares it
// against the record metadata.
func (v *Verifier) VerifyDeep(ctx context.Context, id string) (res *DeepVerifyResult, err error) {
	if !v.engine.Config().DeepVerifyEnabled {
		return nil, ErrDeepVerifyDisabled
	}
	if v.admin == nil {
		return nil, fmt.Errorf("deep verification requires database admin access")
	}
	rec, err := v.engine.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}

	res = &DeepVerifyResult{
		Details: map[string]any{"filename": rec.Filename},
		Timings: make(map[string]time.Duration),
	}
	defer func() {
		if err != nil {
			metrics.RecordVerification("deep", "error")
			return
		}
		metrics.RecordVerification("deep", verificationOutcome(res.Valid))
	}()

	phase := func(name string, start time.Time) {
		res.Timings[name] = time.Since(start)
	}

	start := time.Now()
	shallow := v.verifyRecord(ctx, rec)
	phase("shallow", start)
	if !shallow.Valid {
		res.Message = "shallow verification failed: " + shallow.Message
		res.Errors = append(res.Errors, shallow.Message)
		return res, nil
	}

	start = time.Now()
	plain, cleanup, err := v.engine.OpenPlain(ctx, rec)
	phase("decode", start)
	if err != nil {
		return res, err
	}
	defer cleanup()

	name := v.newName()
	res.Details["scratch_database"] = name
	start = time.Now()
	if err := v.admin.CreateDatabase(ctx, name); err != nil {
		phase("create_database", start)
		return res, err
	}
	phase("create_database", start)
	defer v.dropScratch(ctx, name, res)

	var catalog *database.Catalog
	if rec.Format() == FormatSQL {
		if err := v.admin.WithDatabase(ctx, name, func(q database.Querier) error {
			var err error
			catalog, err = database.LoadCatalog(ctx, q)
			return err
		}); err != nil {
			return res, err
		}
	}

	start = time.Now()
	applied, err := v.applier.Apply(ctx, v.admin.Params().WithDatabase(name), plain, rec.Format(), ApplyOptions{
		Exclusive: true,
		Catalog:   catalog,
	})
	phase("restore", start)
	if err != nil {
		res.Message = "restore into scratch database failed"
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	if applied.Preprocess != nil {
		res.Details["preprocess"] = applied.Preprocess
	}

	start = time.Now()
	err = v.admin.WithDatabase(ctx, name, func(q database.Querier) error {
		return v.compare(ctx, q, rec, res)
	})
	phase("inspect", start)
	if err != nil {
		return res, err
	}

	res.Valid = len(res.Errors) == 0
	if res.Valid {
		res.Message = "backup restored and matched recorded metadata"
	} else {
		res.Message = fmt.Sprintf("%d mismatches against recorded metadata", len(res.Errors))
	}

	logging.Info().
		Str("backup_id", rec.ID).
		Str("scratch_database", name).
		Bool("valid", res.Valid).
		Strs("errors", res.Errors).
		Msg("Deep verification finished")
	return res, nil
}

func (v *Verifier) compare(ctx context.Context, q database.Querier, rec *Record, res *DeepVerifyResult) error {
	tables, err := database.TableCount(ctx, q)
	if err != nil {
		return err
	}
	res.Details["table_count"] = tables
	if rec.Metadata.TableCount > 0 && tables != rec.Metadata.TableCount {
		res.Errors = append(res.Errors, fmt.Sprintf("table count: expected %d, found %d", rec.Metadata.TableCount, tables))
	}

	keys := make([]string, 0, len(rec.Metadata.KeyTableRowCounts))
	for name := range rec.Metadata.KeyTableRowCounts {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	counts, missing, err := database.KeyTableRowCounts(ctx, q, keys)
	if err != nil {
		return err
	}
	res.Details["key_table_row_counts"] = counts
	for _, name := range missing {
		res.Errors = append(res.Errors, fmt.Sprintf("key table %s is missing", name))
	}
	for _, name := range keys {
		got, ok := counts[name]
		if !ok {
			continue
		}
		if want := rec.Metadata.KeyTableRowCounts[name]; got != want {
			res.Errors = append(res.Errors, fmt.Sprintf("key table %s: expected %d rows, found %d", name, want, got))
		}
	}
	return nil
}

func (v *Verifier) dropScratch(ctx context.Context, name string, res *DeepVerifyResult) {
	start := time.Now()
	defer func() { res.Timings["cleanup"] = time.Since(start) }()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := v.admin.TerminateConnections(cleanupCtx, name); err != nil {
		logging.Warn().Err(err).Str("database", name).Msg("Failed to terminate scratch connections")
	}
	if err := v.admin.DropDatabase(cleanupCtx, name); err != nil {
		logging.Error().Err(err).Str("database", name).Msg("Failed to drop scratch database")
		res.Details["cleanup_error"] = err.Error()
	}
}

func verificationOutcome(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
