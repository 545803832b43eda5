// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
engine.go - Backup Creation Engine

This file contains the Engine struct, its collaborators and backup creation.

Backup Creation Flow:
 1. Check preconditions: backups enabled, maintenance gate open, pg_dump
    available, enough free disk space
 2. Build the artifact name from the app version, server major version,
    instance id and UTC timestamp
 3. Persist a "creating" record
 4. pg_dump into a temporary file, then compress/encrypt into the artifact
 5. Size, SHA-256 checksum and database metadata; persist "completed"
 6. Upload to every requested remote location (non-fatal per location)
 7. One audit entry and a lifecycle notification

Every status change is persisted immediately so a crash leaves an accurate
record rather than a stale "creating" one.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tomtom215/dbwarden/internal/artifact"
	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
	"github.com/tomtom215/dbwarden/internal/process"
	"github.com/tomtom215/dbwarden/internal/storage"
)

// AppVersion is set at build time
var AppVersion = "dev"

// ConfigSource supplies the live backup configuration.
type ConfigSource interface {
	BackupConfig() Config
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig Config

// BackupConfig implements ConfigSource.
func (c StaticConfig) BackupConfig() Config { return Config(c) }

// Tools runs the PostgreSQL client binaries. *process.Tools implements it.
type Tools interface {
	CheckAvailable(tools ...string) error
	Dump(ctx context.Context, target process.Target, format, outPath string) (*process.Result, error)
	ListArchive(ctx context.Context, path string) (*process.Result, error)
	RestoreArchive(ctx context.Context, target process.Target, path string, singleTx bool) (*process.Result, error)
	ExecSQLFile(ctx context.Context, target process.Target, path string, singleTx bool) (*process.Result, error)
}

// Inspector reads metadata from the managed database.
type Inspector interface {
	ServerVersion(ctx context.Context) (string, int, error)
	Snapshot(ctx context.Context, keyTables []string) (*database.Snapshot, error)
}

// NewInspector returns an Inspector over q.
func NewInspector(q database.Querier) Inspector {
	return dbInspector{q: q}
}

type dbInspector struct {
	q database.Querier
}

func (i dbInspector) ServerVersion(ctx context.Context) (string, int, error) {
	return database.ServerVersion(ctx, i.q)
}

func (i dbInspector) Snapshot(ctx context.Context, keyTables []string) (*database.Snapshot, error) {
	return database.TakeSnapshot(ctx, i.q, keyTables)
}

// Providers resolves storage locations by name. *storage.Registry implements it.
type Providers interface {
	MustGet(name string) (storage.Provider, error)
}

// OperationGate admits backups while maintenance mode is off.
type OperationGate interface {
	BeginOperation(name string) (done func(), ok bool)
}

// AuditRecorder persists audit entries. *audit.Recorder implements it.
type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry)
}

// Notifier is told about finished backups (event bus, websocket).
type Notifier interface {
	BackupFinished(ctx context.Context, rec *Record)
}

// Notifiers fans a notification out to several notifiers in order.
type Notifiers []Notifier

// BackupFinished implements Notifier.
func (ns Notifiers) BackupFinished(ctx context.Context, rec *Record) {
	for _, n := range ns {
		n.BackupFinished(ctx, rec)
	}
}

// DiskChecker reports free space.
type DiskChecker interface {
	FreeBytes(path string) (uint64, error)
}

// HostDisk reads free space from the host filesystem.
type HostDisk struct{}

// FreeBytes implements DiskChecker.
func (HostDisk) FreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Deps are the Engine collaborators. Gate, Audit, Notifier, Disk and Clock
// are optional.
type Deps struct {
	Config     ConfigSource
	Store      RecordStore
	Tools      Tools
	Inspector  Inspector
	Target     process.Target
	Providers  Providers
	Gate       OperationGate
	Audit      AuditRecorder
	Notifier   Notifier
	Disk       DiskChecker
	AppVersion string
	Clock      func() time.Time
}

// Engine creates and manages backups.
type Engine struct {
	cfg        ConfigSource
	store      RecordStore
	tools      Tools
	inspector  Inspector
	target     process.Target
	providers  Providers
	gate       OperationGate
	audit      AuditRecorder
	notifier   Notifier
	disk       DiskChecker
	appVersion string
	now        func() time.Time
}

// NewEngine validates deps and creates an Engine.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("backup configuration is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("record store is required")
	case deps.Tools == nil:
		return nil, fmt.Errorf("postgres tools are required")
	case deps.Inspector == nil:
		return nil, fmt.Errorf("database inspector is required")
	case deps.Target == nil:
		return nil, fmt.Errorf("database target is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("storage providers are required")
	}

	e := &Engine{
		cfg:        deps.Config,
		store:      deps.Store,
		tools:      deps.Tools,
		inspector:  deps.Inspector,
		target:     deps.Target,
		providers:  deps.Providers,
		gate:       deps.Gate,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		disk:       deps.Disk,
		appVersion: deps.AppVersion,
		now:        deps.Clock,
	}
	if e.disk == nil {
		e.disk = HostDisk{}
	}
	if e.appVersion == "" {
		e.appVersion = AppVersion
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Config returns the current backup configuration.
func (e *Engine) Config() Config {
	return e.cfg.BackupConfig()
}

// Store returns the record store.
func (e *Engine) Store() RecordStore {
	return e.store
}

// Tools returns the PostgreSQL tool runner.
func (e *Engine) Tools() Tools {
	return e.tools
}

// LocalPath returns the artifact path inside the backup directory.
func (e *Engine) LocalPath(rec *Record) string {
	return filepath.Join(e.Config().BackupDir, rec.Filename)
}

// CreateBackup runs pg_dump and stores the artifact. On a dump failure the
// returned record has status failed and err describes the cause.
func (e *Engine) CreateBackup(ctx context.Context, req CreateRequest) (*Record, error) {
	cfg := e.Config()
	if !cfg.Enabled {
		return nil, ErrBackupsDisabled
	}

	if req.Type == "" {
		req.Type = TypeManual
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("invalid backup type %q", req.Type)
	}
	format := req.DumpFormat
	if format == "" {
		format = cfg.DumpFormat
	}
	if !format.Valid() {
		return nil, fmt.Errorf("invalid dump format %q", format)
	}
	locations := req.StorageLocations
	if len(locations) == 0 {
		locations = cfg.StorageLocations
	}
	for _, name := range locations {
		if _, err := e.providers.MustGet(name); err != nil {
			return nil, err
		}
	}

	if e.gate != nil {
		done, ok := e.gate.BeginOperation("backup")
		if !ok {
			return nil, ErrMaintenanceActive
		}
		defer done()
	}

	if err := e.tools.CheckAvailable(process.ToolPgDump); err != nil {
		return nil, err
	}
	if err := cfg.EnsureBackupDir(); err != nil {
		return nil, err
	}
	if err := e.checkDiskSpace(cfg); err != nil {
		return nil, err
	}
	codec, err := artifact.NewCodec(cfg.CodecOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to configure artifact encoding: %w", err)
	}
	engineVersion, versionNum, err := e.inspector.ServerVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}

	start := e.now().UTC()
	instanceID := cfg.ResolvedInstanceID()
	rec := &Record{
		ID: uuid.NewString(),
		Filename: BuildFilename(FilenameParts{
			AppVersion:   e.appVersion,
			EngineMajor:  versionNum / 10000,
			InstanceID:   instanceID,
			Timestamp:    start,
			Format:       format,
			EncodingExts: codec.Extension(),
		}),
		Type:             req.Type,
		Description:      req.Description,
		CreatedAt:        start,
		Status:           StatusCreating,
		StorageLocations: []string{},
		ScheduleID:       req.ScheduleID,
		Metadata: Metadata{
			Encrypted:     codec.Encoding().Encrypted,
			Compression:   codec.Encoding().Compression,
			AppVersion:    e.appVersion,
			EngineVersion: engineVersion,
			InstanceID:    instanceID,
			DumpFormat:    format,
		},
	}
	if err := e.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist backup record: %w", err)
	}

	log := logging.Ctx(logging.ContextWithOperation(ctx, "backup", rec.ID))
	log.Info().
		Str("backup_id", rec.ID).
		Str("filename", rec.Filename).
		Str("type", string(rec.Type)).
		Str("format", string(format)).
		Msg("Backup started")

	if err := e.produceArtifact(ctx, rec, codec, cfg); err != nil {
		e.failBackup(ctx, rec, err, start)
		return rec, err
	}

	if snap, err := e.inspector.Snapshot(ctx, cfg.KeyTables); err != nil {
		log.Warn().Err(err).Str("backup_id", rec.ID).Msg("Failed to gather database metadata")
	} else {
		rec.Metadata.DatabaseSize = snap.DatabaseSize
		rec.Metadata.TableCount = snap.TableCount
		rec.Metadata.ApproxRowCount = snap.ApproxRowCount
		rec.Metadata.SchemaChecksum = snap.SchemaChecksum
		rec.Metadata.KeyTableRowCounts = snap.KeyTableRowCounts
	}

	completed := e.now().UTC()
	rec.CompletedAt = &completed
	rec.StorageLocations = []string{storage.LocationLocal}
	if err := e.transition(ctx, rec, StatusCompleted); err != nil {
		log.Error().Err(err).Str("backup_id", rec.ID).Msg("Failed to persist completed backup")
	}

	e.uploadAll(ctx, rec, locations)
	e.finishBackup(ctx, rec, start)
	return rec, nil
}

func (e *Engine) checkDiskSpace(cfg Config) error {
	if cfg.MinFreeBytes == 0 {
		return nil
	}
	free, err := e.disk.FreeBytes(cfg.BackupDir)
	if err != nil {
		logging.Warn().Err(err).Str("dir", cfg.BackupDir).Msg("Failed to read free disk space")
		return nil
	}
	if free < cfg.MinFreeBytes {
		return fmt.Errorf("%w: %d bytes free in %s, need %d", ErrInsufficientSpace, free, cfg.BackupDir, cfg.MinFreeBytes)
	}
	return nil
}

// produceArtifact dumps the database and writes the final artifact,
// setting Size and Checksum. Partial files are removed on failure.
func (e *Engine) produceArtifact(ctx context.Context, rec *Record, codec *artifact.Codec, cfg Config) error {
	finalPath := filepath.Join(cfg.BackupDir, rec.Filename)
	dumpPath := finalPath
	if !codec.Encoding().Identity() {
		dumpPath = filepath.Join(cfg.BackupDir, "."+rec.ID+rec.Metadata.DumpFormat.Extension()+".tmp")
		defer os.Remove(dumpPath) //nolint:errcheck // Best effort cleanup
	}

	if _, err := e.tools.Dump(ctx, e.target, rec.Metadata.DumpFormat.ToolFormat(), dumpPath); err != nil {
		os.Remove(dumpPath) //nolint:errcheck // Best effort cleanup
		return err
	}

	if dumpPath != finalPath {
		if err := codec.EncodeFile(dumpPath, finalPath); err != nil {
			os.Remove(finalPath) //nolint:errcheck // Best effort cleanup
			return fmt.Errorf("failed to encode backup: %w", err)
		}
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}
	checksum, err := artifact.FileChecksum(finalPath)
	if err != nil {
		os.Remove(finalPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to checksum backup: %w", err)
	}
	rec.Size = info.Size()
	rec.Checksum = checksum
	return nil
}

func (e *Engine) failBackup(ctx context.Context, rec *Record, cause error, start time.Time) {
	now := e.now().UTC()
	rec.CompletedAt = &now
	rec.Error = cause.Error()
	if err := e.transition(ctx, rec, StatusFailed); err != nil {
		logging.Error().Err(err).Str("backup_id", rec.ID).Msg("Failed to persist failed backup")
	}

	logging.Error().
		Err(cause).
		Str("backup_id", rec.ID).
		Str("filename", rec.Filename).
		Msg("Backup failed")

	metrics.RecordBackup(string(rec.Type), string(StatusFailed), e.now().Sub(start), 0)
	e.recordAudit(ctx, rec, audit.StatusFailed, cause.Error())
	if e.notifier != nil {
		e.notifier.BackupFinished(ctx, rec.Clone())
	}
}

func (e *Engine) finishBackup(ctx context.Context, rec *Record, start time.Time) {
	status := audit.StatusSuccess
	var message string
	if len(rec.UploadErrors) > 0 {
		status = audit.StatusPartial
		message = joinErrorMap(rec.UploadErrors)
	}

	logging.Info().
		Str("backup_id", rec.ID).
		Str("filename", rec.Filename).
		Str("status", string(rec.Status)).
		Int64("size", rec.Size).
		Strs("locations", rec.StorageLocations).
		Dur("duration", e.now().Sub(start)).
		Msg("Backup completed")

	metrics.RecordBackup(string(rec.Type), string(rec.Status), e.now().Sub(start), rec.Size)
	e.recordAudit(ctx, rec, status, message)
	if e.notifier != nil {
		e.notifier.BackupFinished(ctx, rec.Clone())
	}
}

func (e *Engine) recordAudit(ctx context.Context, rec *Record, status audit.Status, message string) {
	if e.audit == nil {
		return
	}
	scheduleID := rec.ScheduleID
	if scheduleID == "" {
		scheduleID = audit.ScheduleManual
	}
	e.audit.Record(ctx, &audit.Entry{
		ScheduleID:   scheduleID,
		BackupID:     rec.ID,
		Status:       status,
		ErrorMessage: message,
		Metadata: map[string]any{
			"filename":  rec.Filename,
			"size":      rec.Size,
			"locations": rec.StorageLocations,
			"type":      string(rec.Type),
		},
	})
}

// transition applies a status change and persists it.
func (e *Engine) transition(ctx context.Context, rec *Record, next Status) error {
	if !rec.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, next)
	}
	rec.Status = next
	return e.store.Save(ctx, rec)
}

// uploadAll copies the artifact to every remote location. Failures are
// recorded per location and never abort the backup.
func (e *Engine) uploadAll(ctx context.Context, rec *Record, locations []string) {
	path := e.LocalPath(rec)
	for _, name := range locations {
		if name == storage.LocationLocal {
			continue
		}
		e.uploadOne(ctx, rec, name, path)
	}
}

func (e *Engine) uploadOne(ctx context.Context, rec *Record, name, path string) {
	log := logging.Ctx(ctx)
	settled := rec.Status
	if err := e.transition(ctx, rec, StatusUploading); err != nil {
		log.Error().Err(err).Str("backup_id", rec.ID).Str("location", name).Msg("Failed to persist upload start")
	}

	provider, err := e.providers.MustGet(name)
	if err == nil {
		err = provider.Upload(ctx, storage.UploadRequest{
			Filename: rec.Filename,
			FilePath: path,
			Metadata: map[string]string{
				"backup-id": rec.ID,
				"checksum":  rec.Checksum,
				"instance":  rec.Metadata.InstanceID,
			},
		})
	}

	if err != nil {
		if !errors.Is(err, storage.ErrStorageUploadFailed) {
			err = fmt.Errorf("%w: %s: %v", storage.ErrStorageUploadFailed, name, err)
		}
		if rec.UploadErrors == nil {
			rec.UploadErrors = make(map[string]string)
		}
		rec.UploadErrors[name] = err.Error()
		metrics.RecordUpload(name, "failure")
		log.Warn().Err(err).Str("backup_id", rec.ID).Str("location", name).Msg("Backup upload failed")
	} else {
		if !rec.HasLocation(name) {
			rec.StorageLocations = append(rec.StorageLocations, name)
		}
		delete(rec.UploadErrors, name)
		settled = StatusUploaded
		metrics.RecordUpload(name, "success")
		log.Info().Str("backup_id", rec.ID).Str("location", name).Msg("Backup uploaded")
	}

	if err := e.transition(ctx, rec, settled); err != nil {
		log.Error().Err(err).Str("backup_id", rec.ID).Str("location", name).Msg("Failed to persist upload result")
	}
}

// Upload copies an existing backup to name.
func (e *Engine) Upload(ctx context.Context, id, name string) (*Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Restorable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRestorable, id, rec.Status)
	}
	if _, err := e.providers.MustGet(name); err != nil {
		return nil, err
	}
	path, err := e.EnsureLocal(ctx, rec)
	if err != nil {
		return nil, err
	}
	e.uploadOne(ctx, rec, name, path)
	if msg, failed := rec.UploadErrors[name]; failed {
		return rec, errors.New(msg)
	}
	return rec, nil
}
