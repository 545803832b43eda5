// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package config

import (
	"os"
	"sync"
	"testing"
	"time"
)

func TestManagerReload(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)
	path := writeConfigFile(t, "backup:\n  retention_days: 10\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	m := NewManager(cfg, path)
	if got := m.BackupConfig().RetentionDays; got != 10 {
		t.Fatalf("expected 10 retention days, got %d", got)
	}

	var notified []int
	m.Subscribe(func(c *Config) {
		notified = append(notified, c.Backup.RetentionDays)
	})

	if err := os.WriteFile(path, []byte("backup:\n  retention_days: 21\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := m.Get().Backup.RetentionDays; got != 21 {
		t.Errorf("expected 21 retention days after reload, got %d", got)
	}
	if len(notified) != 1 || notified[0] != 21 {
		t.Errorf("expected one notification with 21, got %v", notified)
	}
}

func TestManagerReloadKeepsConfigOnError(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)
	path := writeConfigFile(t, "backup:\n  retention_days: 10\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	m := NewManager(cfg, path)
	called := false
	m.Subscribe(func(*Config) { called = true })

	if err := os.WriteFile(path, []byte("backup:\n  retention_days: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if m.Get() != cfg {
		t.Error("expected previous configuration kept")
	}
	if called {
		t.Error("expected subscribers not notified on failure")
	}
}

func TestManagerWatch(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)
	path := writeConfigFile(t, "backup:\n  retention_days: 10\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	m := NewManager(cfg, path)
	t.Cleanup(m.StopWatching)

	var mu sync.Mutex
	reloaded := make(chan int, 4)
	m.Subscribe(func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case reloaded <- c.Backup.RetentionDays:
		default:
		}
	})

	if err := m.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("backup:\n  retention_days: 45\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case days := <-reloaded:
		if days != 45 {
			t.Errorf("expected 45 retention days, got %d", days)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}
}

func TestManagerWatchWithoutFile(t *testing.T) {
	m := NewManager(validConfig(), "")
	if err := m.Watch(); err != nil {
		t.Errorf("expected no-op watch, got %v", err)
	}
	m.StopWatching()
}
