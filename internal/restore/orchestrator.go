// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package restore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/process"
)

// Backups is the slice of the backup engine a restore needs.
// *backup.Engine implements it.
type Backups interface {
	GetBackup(ctx context.Context, id string) (*backup.Record, error)
	ListBackups(ctx context.Context) ([]*backup.Record, error)
	LocalPath(rec *backup.Record) string
	EnsureLocal(ctx context.Context, rec *backup.Record) (string, error)
	OpenPlain(ctx context.Context, rec *backup.Record) (path string, cleanup func(), err error)
	ReconcileRecords(ctx context.Context, snapshot []*backup.Record) error
}

// Verifier re-checks an artifact before it is applied. *backup.Verifier
// implements it.
type Verifier interface {
	VerifyBackup(ctx context.Context, id string) (*backup.VerifyResult, error)
}

// Applier loads a decoded dump. *backup.Applier implements it.
type Applier interface {
	Apply(ctx context.Context, target process.Target, path string, format backup.DumpFormat, opts backup.ApplyOptions) (*backup.ApplyResult, error)
}

// Maintenance is the coordinator surface used by restores.
// *maintenance.Coordinator implements it.
type Maintenance interface {
	EnableMaintenance(ctx context.Context, reason string) error
	DisableMaintenance(ctx context.Context)
	WaitForOperations(ctx context.Context) error
	PauseAllServices(ctx context.Context) maintenance.Report
	ResumeAllServices(ctx context.Context) maintenance.Report
}

// Pool is the application connection pool. *database.Pool implements it.
type Pool interface {
	Drain()
	Reconnect(ctx context.Context) error
	Migrate(ctx context.Context) error
}

// Admin performs database-level operations on the restore target.
// *database.Admin implements it.
type Admin interface {
	Params() database.ConnParams
	TerminateConnections(ctx context.Context, name string) (int64, error)
	DropDatabase(ctx context.Context, name string) error
	CreateDatabase(ctx context.Context, name string) error
}

// Deps are the collaborators of an Orchestrator. Sessions and Clock are
// optional.
type Deps struct {
	Config      Config
	Backups     Backups
	Verifier    Verifier
	Applier     Applier
	Maintenance Maintenance
	Pool        Pool
	Admin       Admin
	Inspector   Inspector
	Audit       backup.AuditRecorder
	Sessions    *SessionStore
	Observers   []Observer
	Clock       func() time.Time
}

// Orchestrator runs restores one at a time.
type Orchestrator struct {
	// held for the whole restore
	mu      sync.Mutex
	running atomic.Bool

	cfg         Config
	backups     Backups
	verifier    Verifier
	applier     Applier
	maintenance Maintenance
	pool        Pool
	admin       Admin
	inspector   Inspector
	audit       backup.AuditRecorder
	sessions    *SessionStore
	now         func() time.Time

	obsMu     sync.RWMutex
	observers []Observer
}

// NewOrchestrator validates deps and creates an Orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Backups == nil:
		return nil, errors.New("restore: backups are required")
	case deps.Verifier == nil:
		return nil, errors.New("restore: verifier is required")
	case deps.Applier == nil:
		return nil, errors.New("restore: applier is required")
	case deps.Maintenance == nil:
		return nil, errors.New("restore: maintenance coordinator is required")
	case deps.Pool == nil:
		return nil, errors.New("restore: connection pool is required")
	case deps.Admin == nil:
		return nil, errors.New("restore: admin is required")
	case deps.Inspector == nil:
		return nil, errors.New("restore: inspector is required")
	case deps.Audit == nil:
		return nil, errors.New("restore: audit recorder is required")
	}

	o := &Orchestrator{
		cfg:         deps.Config,
		backups:     deps.Backups,
		verifier:    deps.Verifier,
		applier:     deps.Applier,
		maintenance: deps.Maintenance,
		pool:        deps.Pool,
		admin:       deps.Admin,
		inspector:   deps.Inspector,
		audit:       deps.Audit,
		sessions:    deps.Sessions,
		now:         deps.Clock,
		observers:   append([]Observer(nil), deps.Observers...),
	}
	if o.cfg.OperationWaitTimeout <= 0 {
		o.cfg.OperationWaitTimeout = DefaultConfig().OperationWaitTimeout
	}
	if o.sessions == nil {
		o.sessions = NewSessionStore(o.cfg.SessionTTL, o.cfg.MaxSessions)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// AddObserver subscribes obs to progress events.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *SessionStore {
	return o.sessions
}

// Running reports whether a restore is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RestoreBackup restores backupID and waits for the outcome. The restore
// runs on a context detached from ctx and cannot be cancelled once started.
func (o *Orchestrator) RestoreBackup(ctx context.Context, backupID string, opts Options) (*Result, error) {
	r, res, err := o.begin(backupID, opts)
	if err != nil {
		return res, err
	}
	return r.execute(context.WithoutCancel(ctx))
}

// StartRestore starts restoring backupID in the background and returns the
// restore ID for polling.
func (o *Orchestrator) StartRestore(ctx context.Context, backupID string, opts Options) (string, error) {
	r, res, err := o.begin(backupID, opts)
	if err != nil {
		return res.RestoreID, err
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := r.execute(detached); err != nil {
			logging.Error().Err(err).Str("restore_id", r.id).Msg("Background restore failed")
		}
	}()
	return r.id, nil
}

func (o *Orchestrator) begin(backupID string, opts Options) (*run, *Result, error) {
	id := uuid.NewString()
	if o.cfg.RequireConfirmation && opts.ConfirmationText != ConfirmationText {
		return nil, &Result{Message: ErrConfirmationRequired.Error(), RestoreID: id}, ErrConfirmationRequired
	}
	if !o.mu.TryLock() {
		return nil, &Result{Message: ErrRestoreInProgress.Error(), RestoreID: id}, ErrRestoreInProgress
	}
	o.running.Store(true)

	now := o.now()
	o.sessions.create(&Session{
		RestoreID: id,
		BackupID:  backupID,
		Status:    StatusStarted,
		Message:   "Restore started",
		UserID:    opts.UserID,
		StartedAt: now,
		UpdatedAt: now,
	})

	return &run{
		o:        o,
		id:       id,
		backupID: backupID,
		opts:     opts,
		details:  map[string]any{},
	}, nil, nil
}

func (o *Orchestrator) observerList() []Observer {
	o.obsMu.RLock()
	defer o.obsMu.RUnlock()
	return append([]Observer(nil), o.observers...)
}
