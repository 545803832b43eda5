// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
manager.go - Runtime Configuration Manager

Manager holds the active configuration and swaps it atomically on reload.
Only some sections take effect without a restart: backup schedules and
retention (through the scheduler's Reload), the logging level, and restore
confirmation. Subscribers decide which changes they act on.

A reload that fails to load or validate leaves the active configuration in
place.
*/

//nolint:staticcheck // File documentation, not package doc
package config

import (
	"fmt"
	"sync"

	"github.com/knadh/koanf/providers/file"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/logging"
)

// Subscriber is called after a successful reload with the new configuration.
type Subscriber func(cfg *Config)

// Manager holds the current configuration.
type Manager struct {
	mu          sync.RWMutex
	cfg         *Config
	path        string
	load        func(path string) (*Config, error)
	subscribers []Subscriber

	watchOnce sync.Once
	watcher   *file.File
}

// NewManager wraps an already loaded configuration. path is the file
// reloads read from; empty means environment and defaults only.
func NewManager(cfg *Config, path string) *Manager {
	return &Manager{
		cfg:  cfg,
		path: path,
		load: LoadFrom,
	}
}

// Get returns the active configuration. Callers must treat it as read-only.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// BackupConfig implements backup.ConfigSource.
func (m *Manager) BackupConfig() backup.Config {
	return m.Get().Backup
}

// Path returns the config file path, or "" when there is none.
func (m *Manager) Path() string {
	return m.path
}

// Subscribe registers fn to run after every successful reload.
func (m *Manager) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Reload re-reads the configuration and notifies subscribers. On error the
// active configuration is unchanged.
func (m *Manager) Reload() error {
	next, err := m.load(m.path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	m.mu.Lock()
	m.cfg = next
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	logging.Info().
		Str("path", m.path).
		Int("schedules", len(next.Backup.Schedules)).
		Msg("Configuration reloaded")

	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// Watch reloads the configuration whenever the config file changes. It is a
// no-op without a config file and only starts one watcher.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}

	var err error
	m.watchOnce.Do(func() {
		m.watcher = file.Provider(m.path)
		err = m.watcher.Watch(func(_ interface{}, werr error) {
			if werr != nil {
				logging.Error().Err(werr).Str("path", m.path).Msg("Config file watch failed")
				return
			}
			if rerr := m.Reload(); rerr != nil {
				logging.Error().Err(rerr).Str("path", m.path).Msg("Keeping previous configuration")
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", m.path, err)
	}
	return nil
}

// StopWatching stops the file watcher if one was started.
func (m *Manager) StopWatching() {
	if m.watcher != nil {
		//nolint:errcheck // Best effort cleanup
		m.watcher.Unwatch()
	}
}
