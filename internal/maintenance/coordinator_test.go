// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type fakeService struct {
	mu        sync.Mutex
	name      string
	pauseErr  error
	resumeErr error
	pauses    int
	resumes   int
	order     *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Pause(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	if s.order != nil {
		*s.order = append(*s.order, "pause:"+s.name)
	}
	return s.pauseErr
}

func (s *fakeService) Resume(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	if s.order != nil {
		*s.order = append(*s.order, "resume:"+s.name)
	}
	return s.resumeErr
}

type failingFlagStore struct {
	MemoryFlagStore
}

func (*failingFlagStore) SaveFlag(context.Context, Flag) error { return errors.New("disk full") }

func newTestCoordinator(store FlagStore) *Coordinator {
	return NewCoordinator(Options{GracePeriod: -1, Store: store})
}

func TestEnableDisableIdempotent(t *testing.T) {
	store := &MemoryFlagStore{}
	c := newTestCoordinator(store)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []bool
	c.AddListener(ListenerFunc(func(_ context.Context, s State) {
		mu.Lock()
		seen = append(seen, s.Maintenance)
		mu.Unlock()
	}))

	if err := c.EnableMaintenance(ctx, "restore r1"); err != nil {
		t.Fatalf("EnableMaintenance failed: %v", err)
	}
	if err := c.EnableMaintenance(ctx, "restore r2"); err != nil {
		t.Fatalf("second EnableMaintenance failed: %v", err)
	}

	state := c.State()
	if !state.Maintenance || state.Reason != "restore r1" || state.Since == nil {
		t.Errorf("expected maintenance for restore r1, got %+v", state)
	}
	flag, _ := store.LoadFlag(ctx)
	if !flag.Active {
		t.Error("expected persisted flag")
	}

	c.DisableMaintenance(ctx)
	c.DisableMaintenance(ctx)

	if c.Active() {
		t.Error("expected maintenance off")
	}
	flag, _ = store.LoadFlag(ctx)
	if flag.Active {
		t.Error("expected persisted flag cleared")
	}
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("expected listener notified [true false], got %v", seen)
	}
}

func TestEnableMaintenanceFailure(t *testing.T) {
	c := newTestCoordinator(&failingFlagStore{})

	err := c.EnableMaintenance(context.Background(), "restore")
	if !errors.Is(err, ErrMaintenanceModeFailure) {
		t.Fatalf("expected ErrMaintenanceModeFailure, got %v", err)
	}
	if c.Active() {
		t.Error("expected maintenance to stay off")
	}
}

func TestPauseResumeIdempotentAndTolerant(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	var order []string
	a := &fakeService{name: "scheduler", order: &order}
	b := &fakeService{name: "events", order: &order, pauseErr: errors.New("nats down")}
	c.Register(a)
	c.Register(b)

	report := c.PauseAllServices(ctx)
	if report.OK() {
		t.Error("expected failure reported")
	}
	if report.Failed["events"] != "nats down" {
		t.Errorf("expected events failure, got %v", report.Failed)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != "scheduler" {
		t.Errorf("expected scheduler paused, got %v", report.Succeeded)
	}

	if again := c.PauseAllServices(ctx); !again.Skipped {
		t.Error("expected second pause to be skipped")
	}
	if a.pauses != 1 {
		t.Errorf("expected 1 pause, got %d", a.pauses)
	}
	if !c.State().ServicesPaused {
		t.Error("expected services paused")
	}

	if r := c.ResumeAllServices(ctx); !r.OK() {
		t.Errorf("expected clean resume, got %v", r.Failed)
	}
	if again := c.ResumeAllServices(ctx); !again.Skipped {
		t.Error("expected second resume to be skipped")
	}

	want := []string{"pause:scheduler", "pause:events", "resume:events", "resume:scheduler"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected order %v, got %v", want, order)
			break
		}
	}
}

func TestPauseWaitsGracePeriod(t *testing.T) {
	c := NewCoordinator(Options{GracePeriod: 50 * time.Millisecond})
	start := time.Now()
	c.PauseAllServices(context.Background())
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected grace period wait, got %v", elapsed)
	}
}

func TestPauseGracePeriodHonorsContext(t *testing.T) {
	c := NewCoordinator(Options{GracePeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.PauseAllServices(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected cancelled context to cut the grace period short")
	}
}

func TestBeginOperationGate(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	done, ok := c.BeginOperation("backup")
	if !ok {
		t.Fatal("expected operation admitted")
	}
	if c.State().ActiveOperations != 1 {
		t.Errorf("expected 1 active operation, got %d", c.State().ActiveOperations)
	}

	if err := c.EnableMaintenance(ctx, "restore"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.BeginOperation("backup"); ok {
		t.Error("expected operation refused during maintenance")
	}

	waited := make(chan error, 1)
	go func() { waited <- c.WaitForOperations(ctx) }()

	select {
	case <-waited:
		t.Fatal("expected WaitForOperations to block while an operation runs")
	case <-time.After(20 * time.Millisecond):
	}

	done()
	done()
	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForOperations did not return")
	}
	if c.State().ActiveOperations != 0 {
		t.Errorf("expected 0 active operations, got %d", c.State().ActiveOperations)
	}
}

func TestWaitForOperationsContext(t *testing.T) {
	c := newTestCoordinator(nil)
	if _, ok := c.BeginOperation("backup"); !ok {
		t.Fatal("expected operation admitted")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := c.WaitForOperations(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRecoverBadgerFlag(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	store := NewBadgerFlagStore(db)
	ctx := context.Background()

	if found, err := NewCoordinator(Options{Store: store}).Recover(ctx); err != nil || found {
		t.Fatalf("expected no stale flag, got %v %v", found, err)
	}

	if err := store.SaveFlag(ctx, Flag{Active: true, Reason: "restore r9", Since: time.Now()}); err != nil {
		t.Fatal(err)
	}
	found, err := NewCoordinator(Options{Store: store}).Recover(ctx)
	if err != nil || !found {
		t.Fatalf("expected stale flag recovered, got %v %v", found, err)
	}
	flag, err := store.LoadFlag(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if flag.Active {
		t.Error("expected flag cleared after recover")
	}
}
