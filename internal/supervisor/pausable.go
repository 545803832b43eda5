// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
pausable.go - Pausable Supervised Services

Suture has no notion of pausing a service. PausableService gets the same
effect by removing the service from its supervisor on Pause and adding it
back on Resume. It satisfies maintenance.Pausable so the maintenance
coordinator can stop scheduled jobs during a restore.
*/

//nolint:staticcheck // File documentation, not package doc
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// ServiceHost is the part of *suture.Supervisor a PausableService needs.
type ServiceHost interface {
	Add(svc suture.Service) suture.ServiceToken
	RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error
}

// PausableService runs svc under host and can stop and restart it.
type PausableService struct {
	name    string
	host    ServiceHost
	svc     suture.Service
	timeout time.Duration

	mu      sync.Mutex
	token   suture.ServiceToken
	running bool
}

// NewPausableService wraps svc. It is not added to host until Start.
func NewPausableService(name string, host ServiceHost, svc suture.Service, timeout time.Duration) *PausableService {
	if timeout <= 0 {
		timeout = DefaultTreeConfig().ShutdownTimeout
	}
	return &PausableService{
		name:    name,
		host:    host,
		svc:     svc,
		timeout: timeout,
	}
}

// Name implements maintenance.Pausable.
func (p *PausableService) Name() string {
	return p.name
}

// Start adds the service to its host. Calling it while running is a no-op.
func (p *PausableService) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.token = p.host.Add(p.svc)
	p.running = true
}

// Pause removes the service and waits for it to stop. Pausing a paused
// service is a no-op.
func (p *PausableService) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := p.host.RemoveAndWait(p.token, timeout); err != nil {
		return fmt.Errorf("failed to stop %s: %w", p.name, err)
	}
	p.running = false
	logging.Info().Str("service", p.name).Msg("Service paused")
	return nil
}

// Resume adds the service back. Resuming a running service is a no-op.
func (p *PausableService) Resume(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.token = p.host.Add(p.svc)
	p.running = true
	logging.Info().Str("service", p.name).Msg("Service resumed")
	return nil
}

// Running reports whether the service is currently added to its host.
func (p *PausableService) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
