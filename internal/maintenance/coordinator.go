// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

// DefaultGracePeriod is how long PauseAllServices waits after pausing so
// in-flight work can drain.
const DefaultGracePeriod = 2 * time.Second

// ErrMaintenanceModeFailure is returned when maintenance mode cannot be set.
var ErrMaintenanceModeFailure = errors.New("failed to enable maintenance mode")

// Pausable is a subsystem that must stop touching the database during a
// restore.
type Pausable interface {
	Name() string
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// State is a snapshot of the coordinator.
type State struct {
	Maintenance      bool       `json:"maintenance"`
	Reason           string     `json:"reason,omitempty"`
	Since            *time.Time `json:"since,omitempty"`
	ServicesPaused   bool       `json:"services_paused"`
	Services         []string   `json:"services"`
	ActiveOperations int        `json:"active_operations"`
}

// Report is the outcome of PauseAllServices or ResumeAllServices.
type Report struct {
	// Already in the requested state; nothing was done
	Skipped   bool              `json:"skipped"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// OK reports whether every subsystem changed state.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Listener is notified after maintenance mode changes.
type Listener interface {
	MaintenanceChanged(ctx context.Context, state State)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, state State)

// MaintenanceChanged implements Listener.
func (f ListenerFunc) MaintenanceChanged(ctx context.Context, state State) { f(ctx, state) }

// Options configures a Coordinator.
type Options struct {
	// GracePeriod after pausing; zero uses DefaultGracePeriod, negative disables
	GracePeriod time.Duration

	// Store persists the flag across restarts (optional)
	Store FlagStore

	// Clock for Since timestamps (optional)
	Clock func() time.Time
}

// Coordinator owns maintenance mode and the pausable subsystems.
type Coordinator struct {
	mu        sync.Mutex
	active    bool
	reason    string
	since     time.Time
	paused    bool
	services  []Pausable
	listeners []Listener

	ops  int
	idle chan struct{}

	store FlagStore
	grace time.Duration
	now   func() time.Time
}

// NewCoordinator creates a Coordinator with maintenance mode off.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		store: opts.Store,
		grace: opts.GracePeriod,
		now:   opts.Clock,
	}
	if c.grace == 0 {
		c.grace = DefaultGracePeriod
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Register adds a dependent subsystem. Subsystems are paused in
// registration order and resumed in reverse.
func (c *Coordinator) Register(p Pausable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = append(c.services, p)
}

// AddListener subscribes l to maintenance mode changes.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns a snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	s := State{
		Maintenance:      c.active,
		Reason:           c.reason,
		ServicesPaused:   c.paused,
		Services:         make([]string, 0, len(c.services)),
		ActiveOperations: c.ops,
	}
	if c.active {
		since := c.since
		s.Since = &since
	}
	for _, p := range c.services {
		s.Services = append(s.Services, p.Name())
	}
	return s
}

// Active reports whether maintenance mode is on.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// EnableMaintenance turns maintenance mode on. Enabling twice is a no-op.
// If the flag cannot be persisted the mode stays off and
// ErrMaintenanceModeFailure is returned.
func (c *Coordinator) EnableMaintenance(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	since := c.now().UTC()
	if c.store != nil {
		if err := c.store.SaveFlag(ctx, Flag{Active: true, Reason: reason, Since: since}); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrMaintenanceModeFailure, err)
		}
	}
	c.active = true
	c.reason = reason
	c.since = since
	state := c.stateLocked()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	metrics.SetMaintenanceMode(true)
	logging.Warn().Str("reason", reason).Msg("Maintenance mode enabled")
	notify(ctx, listeners, state)
	return nil
}

// DisableMaintenance turns maintenance mode off. Disabling twice is a
// no-op. A failure to clear the persisted flag is logged; the in-memory
// mode is always cleared.
func (c *Coordinator) DisableMaintenance(ctx context.Context) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	if c.store != nil {
		if err := c.store.ClearFlag(ctx); err != nil {
			logging.Error().Err(err).Msg("Failed to clear persisted maintenance flag")
		}
	}
	duration := c.now().Sub(c.since)
	c.active = false
	c.reason = ""
	c.since = time.Time{}
	state := c.stateLocked()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	metrics.SetMaintenanceMode(false)
	logging.Info().Dur("duration", duration).Msg("Maintenance mode disabled")
	notify(ctx, listeners, state)
}

func notify(ctx context.Context, listeners []Listener, state State) {
	for _, l := range listeners {
		l.MaintenanceChanged(ctx, state)
	}
}

// Recover clears a persisted flag left behind by a crash. It returns true
// when a stale flag was found.
func (c *Coordinator) Recover(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	flag, err := c.store.LoadFlag(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load maintenance flag: %w", err)
	}
	if !flag.Active {
		return false, nil
	}

	logging.Warn().
		Str("reason", flag.Reason).
		Time("since", flag.Since).
		Msg("Clearing stale maintenance flag from a previous run")
	if err := c.store.ClearFlag(ctx); err != nil {
		return true, fmt.Errorf("failed to clear maintenance flag: %w", err)
	}
	return true, nil
}

// PauseAllServices pauses every registered subsystem, then waits for the
// grace period. Failures are reported, never returned.
func (c *Coordinator) PauseAllServices(ctx context.Context) Report {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return Report{Skipped: true}
	}
	c.paused = true
	services := append([]Pausable(nil), c.services...)
	c.mu.Unlock()

	report := apply(ctx, services, "pause", func(p Pausable) error { return p.Pause(ctx) })

	if c.grace > 0 {
		timer := time.NewTimer(c.grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	return report
}

// ResumeAllServices resumes every registered subsystem in reverse order.
// Failures are reported, never returned.
func (c *Coordinator) ResumeAllServices(ctx context.Context) Report {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return Report{Skipped: true}
	}
	c.paused = false
	services := make([]Pausable, 0, len(c.services))
	for i := len(c.services) - 1; i >= 0; i-- {
		services = append(services, c.services[i])
	}
	c.mu.Unlock()

	return apply(ctx, services, "resume", func(p Pausable) error { return p.Resume(ctx) })
}

func apply(ctx context.Context, services []Pausable, action string, fn func(Pausable) error) Report {
	report := Report{Succeeded: []string{}}
	for _, p := range services {
		if err := fn(p); err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[p.Name()] = err.Error()
			continue
		}
		report.Succeeded = append(report.Succeeded, p.Name())
	}

	if len(report.Failed) > 0 {
		names := make([]string, 0, len(report.Failed))
		for name, msg := range report.Failed {
			names = append(names, name+": "+msg)
		}
		sort.Strings(names)
		logging.Ctx(ctx).Warn().
			Str("action", action).
			Str("failures", strings.Join(names, "; ")).
			Int("succeeded", len(report.Succeeded)).
			Msg("Some services did not " + action)
	} else {
		logging.Ctx(ctx).Info().Str("action", action).Int("services", len(report.Succeeded)).Msg("Services " + action + "d")
	}
	return report
}

// BeginOperation admits a backup-like operation unless maintenance mode is
// on. done must be called when the operation finishes.
func (c *Coordinator) BeginOperation(name string) (done func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		logging.Info().Str("operation", name).Str("reason", c.reason).Msg("Operation refused during maintenance")
		return nil, false
	}
	if c.ops == 0 {
		c.idle = make(chan struct{})
	}
	c.ops++

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.ops--
			if c.ops == 0 {
				close(c.idle)
			}
		})
	}, true
}

// WaitForOperations blocks until no admitted operation is running.
func (c *Coordinator) WaitForOperations(ctx context.Context) error {
	c.mu.Lock()
	if c.ops == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	n := c.ops
	c.mu.Unlock()

	logging.Info().Int("operations", n).Msg("Waiting for in-flight operations")
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d operations: %w", n, ctx.Err())
	}
}
