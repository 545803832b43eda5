// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockService counts Serve calls and can fail a fixed number of times.
type mockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failsLeft  atomic.Int32
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	if m.failsLeft.Load() > 0 {
		m.failsLeft.Add(-1)
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func (m *mockService) starts() int32 { return m.startCount.Load() }
func (m *mockService) stops() int32  { return m.stopCount.Load() }

// waitFor polls cond until it holds or the timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

var _ suture.Service = (*mockService)(nil)
