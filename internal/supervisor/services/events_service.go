// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package services

import (
	"context"
	"fmt"
	"time"
)

// EventBusRunner is satisfied by *events.Bus.
type EventBusRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// EventBusService adapts the event bus Start/Shutdown lifecycle to Serve:
// start, block until cancellation, then shut down within shutdownTimeout.
// A failed Start is returned so suture retries with backoff.
type EventBusService struct {
	bus             EventBusRunner
	shutdownTimeout time.Duration
}

// NewEventBusService wraps bus. A non-positive timeout uses 10s.
func NewEventBusService(bus EventBusRunner, shutdownTimeout time.Duration) *EventBusService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EventBusService{bus: bus, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *EventBusService) Serve(ctx context.Context) error {
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("event bus start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.bus.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *EventBusService) String() string {
	return "event-bus"
}
