// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSupervisorTreeDefaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if len(tree.layers) != len(layerOrder) {
		t.Fatalf("expected %d layers, got %d", len(layerOrder), len(tree.layers))
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("expected defaults %+v, got %+v", DefaultTreeConfig(), tree.config)
	}
}

func TestSupervisorTreeStartsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := newMockService("session-janitor")
	jobs := newMockService("scheduler")
	messaging := newMockService("websocket-hub")
	api := newMockService("http-server")
	tree.Add(LayerData, data)
	tree.Add(LayerJobs, jobs)
	tree.Add(LayerMessaging, messaging)
	tree.Add(LayerAPI, api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*mockService{data, jobs, messaging, api} {
		if !waitFor(time.Second, func() bool { return svc.starts() >= 1 }) {
			t.Errorf("%s was not started", svc.name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("scheduler")
	failing.failsLeft.Store(2)
	stable := newMockService("http-server")
	tree.Add(LayerJobs, failing)
	tree.Add(LayerAPI, stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	if !waitFor(2*time.Second, func() bool { return failing.starts() >= 3 }) {
		t.Errorf("expected at least 3 starts, got %d", failing.starts())
	}
	if stable.starts() != 1 {
		t.Errorf("expected stable service started once, got %d", stable.starts())
	}
}

func TestNewSupervisorTreeRequiresLogger(t *testing.T) {
	if _, err := NewSupervisorTree(nil, TreeConfig{}); err == nil {
		t.Error("expected error without logger")
	}
}

func TestUnknownLayerPanics(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown layer")
		}
	}()
	tree.Add(Layer("storage"), newMockService("x"))
}

func TestRemoveService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("event-bus")
	token := tree.Add(LayerMessaging, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	if !waitFor(time.Second, func() bool { return svc.starts() == 1 }) {
		t.Fatal("service was not started")
	}
	if err := tree.Remove(LayerMessaging, token); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !waitFor(time.Second, func() bool { return svc.stops() == 1 }) {
		t.Error("service was not stopped")
	}
}
