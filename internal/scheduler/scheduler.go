// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package scheduler runs configured backup schedules and the daily retention
// job on cron triggers.
//
// scheduler.go - Backup Scheduler Service
//
// Each enabled schedule becomes a cron entry that creates a scheduled backup
// for the schedule's storage locations. A fixed retention job runs at 03:00.
// Runs are skipped while maintenance mode is active, and a schedule whose
// previous run is still going is skipped rather than overlapped.
//
// The scheduler is supervised by suture through Serve and is paused during
// restores through supervisor.PausableService.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

// RetentionSpec is the cron expression of the retention job.
const RetentionSpec = "0 3 * * *"

// RetentionJobID identifies the retention job in entries and metrics.
const RetentionJobID = "retention"

// Backups is the part of *backup.Engine the scheduler drives.
type Backups interface {
	CreateBackup(ctx context.Context, req backup.CreateRequest) (*backup.Record, error)
	CleanupExpired(ctx context.Context, retentionDays int) (*backup.CleanupSummary, error)
}

// MaintenanceState reports whether maintenance mode is on.
// *maintenance.Coordinator implements it.
type MaintenanceState interface {
	Active() bool
}

// Entry describes a registered job.
type Entry struct {
	ID        string     `json:"id"`
	Spec      string     `json:"spec"`
	Frequency string     `json:"frequency,omitempty"`
	Locations []string   `json:"storage_locations,omitempty"`
	Next      *time.Time `json:"next_run,omitempty"`
	Prev      *time.Time `json:"prev_run,omitempty"`
	Running   bool       `json:"running"`
}

type job struct {
	entry    Entry
	cronID   cron.EntryID
	inFlight atomic.Bool
}

// Scheduler triggers scheduled backups and retention.
type Scheduler struct {
	backups     Backups
	config      backup.ConfigSource
	maintenance MaintenanceState
	logger      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*job
	baseCtx context.Context
	running bool
}

// New creates a stopped scheduler. maintenance may be nil.
func New(backups Backups, config backup.ConfigSource, maintenance MaintenanceState) *Scheduler {
	return &Scheduler{
		backups:     backups,
		config:      config,
		maintenance: maintenance,
		logger:      logging.WithComponent("scheduler"),
		jobs:        make(map[string]*job),
	}
}

// Start registers every enabled schedule and the retention job from the
// current configuration and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	return s.startLocked(ctx)
}

func (s *Scheduler) startLocked(ctx context.Context) error {
	p, err := s.prepare(ctx)
	if err != nil {
		return err
	}
	s.install(p)
	return nil
}

// jobPlan holds a fully registered cron runner that has not started yet.
type jobPlan struct {
	cron *cron.Cron
	jobs map[string]*job
	base context.Context
	loc  *time.Location
}

// prepare registers every job from the current configuration on a new cron
// runner without touching the running one.
func (s *Scheduler) prepare(ctx context.Context) (*jobPlan, error) {
	cfg := s.config.BackupConfig()

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	jobs := make(map[string]*job)
	// Jobs outlive the caller's cancellation; Stop waits for them instead.
	base := context.WithoutCancel(ctx)

	if !cfg.Enabled {
		s.logger.Info().Msg("Backups disabled, no schedules registered")
	} else {
		for i := range cfg.Schedules {
			sched := cfg.Schedules[i]
			if !sched.Enabled {
				continue
			}
			spec, err := sched.CronExpression()
			if err != nil {
				return nil, fmt.Errorf("failed to register schedule %s: %w", sched.ID, err)
			}
			j := &job{entry: Entry{
				ID:        sched.ID,
				Spec:      spec,
				Frequency: string(sched.Frequency),
				Locations: sched.StorageLocations,
			}}
			id, err := c.AddFunc(spec, func() { s.runSchedule(base, j, sched) })
			if err != nil {
				return nil, fmt.Errorf("failed to register schedule %s: %w", sched.ID, err)
			}
			j.cronID = id
			jobs[sched.ID] = j
		}

		rj := &job{entry: Entry{ID: RetentionJobID, Spec: RetentionSpec}}
		id, err := c.AddFunc(RetentionSpec, func() { s.runRetention(base, rj) })
		if err != nil {
			return nil, fmt.Errorf("failed to register retention job: %w", err)
		}
		rj.cronID = id
		jobs[RetentionJobID] = rj
	}

	return &jobPlan{cron: c, jobs: jobs, base: base, loc: loc}, nil
}

func (s *Scheduler) install(p *jobPlan) {
	p.cron.Start()
	s.cron = p.cron
	s.jobs = p.jobs
	s.baseCtx = p.base
	s.running = true

	s.logger.Info().
		Int("jobs", len(p.jobs)).
		Str("timezone", p.loc.String()).
		Msg("Scheduler started")
}

// Stop cancels every trigger and waits for running jobs. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// Reload re-registers jobs from the latest configuration. A stopped
// scheduler stays stopped. When the new configuration cannot be registered
// the previous jobs keep running and the error is returned.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Debug().Msg("Scheduler not running, reload deferred to next start")
		return nil
	}
	p, err := s.prepare(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Keeping previous schedules")
		return fmt.Errorf("failed to reload schedules: %w", err)
	}
	s.stopLocked()
	s.install(p)
	return nil
}

// Running reports whether the cron runner is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Entries returns the registered jobs ordered by ID.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := j.entry
		e.Running = j.inFlight.Load()
		if s.running {
			ce := s.cron.Entry(j.cronID)
			if !ce.Next.IsZero() {
				next := ce.Next
				e.Next = &next
			}
			if !ce.Prev.IsZero() {
				prev := ce.Prev
				e.Prev = &prev
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Serve implements suture.Service: start, block until ctx ends, stop.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// skip reports whether a run must be skipped, recording why.
func (s *Scheduler) skip(j *job) bool {
	if s.maintenance != nil && s.maintenance.Active() {
		s.logger.Info().Str("schedule_id", j.entry.ID).Msg("Skipping scheduled run during maintenance mode")
		metrics.RecordScheduleSkipped(j.entry.ID)
		return true
	}
	if !j.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn().Str("schedule_id", j.entry.ID).Msg("Previous run still in progress, skipping")
		metrics.RecordScheduleSkipped(j.entry.ID)
		return true
	}
	return false
}

func (s *Scheduler) runSchedule(ctx context.Context, j *job, sched backup.Schedule) {
	if s.skip(j) {
		return
	}
	defer j.inFlight.Store(false)

	ctx = logging.ContextWithNewCorrelationID(ctx)
	s.logger.Info().Str("schedule_id", sched.ID).Msg("Starting scheduled backup")

	rec, err := s.backups.CreateBackup(ctx, backup.CreateRequest{
		Type:             backup.TypeScheduled,
		Description:      fmt.Sprintf("Scheduled %s backup", sched.Frequency),
		StorageLocations: sched.StorageLocations,
		ScheduleID:       sched.ID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("Scheduled backup failed")
		return
	}
	s.logger.Info().
		Str("schedule_id", sched.ID).
		Str("backup_id", rec.ID).
		Str("status", string(rec.Status)).
		Msg("Scheduled backup finished")
}

func (s *Scheduler) runRetention(ctx context.Context, j *job) {
	if s.skip(j) {
		return
	}
	defer j.inFlight.Store(false)

	if _, err := s.RunRetention(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Retention cleanup failed")
	}
}

// RunRetention deletes backups older than the configured retention now.
func (s *Scheduler) RunRetention(ctx context.Context) (*backup.CleanupSummary, error) {
	days := s.config.BackupConfig().RetentionDays
	return s.backups.CleanupExpired(logging.ContextWithNewCorrelationID(ctx), days)
}
