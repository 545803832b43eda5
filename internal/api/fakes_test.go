// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/restore"
	"github.com/tomtom215/dbwarden/internal/scheduler"
)

type fakeBackups struct {
	mu      sync.Mutex
	records []*backup.Record
	created []backup.CreateRequest
	deleted []string
	err     error
}

func (f *fakeBackups) CreateBackup(_ context.Context, req backup.CreateRequest) (*backup.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &backup.Record{ID: "new", Type: req.Type, Status: backup.StatusUploaded, Description: req.Description}, nil
}

func (f *fakeBackups) ListBackups(context.Context) ([]*backup.Record, error) {
	return f.records, f.err
}

func (f *fakeBackups) GetBackup(_ context.Context, id string) (*backup.Record, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, backup.ErrBackupNotFound
}

func (f *fakeBackups) DeleteBackup(_ context.Context, id string) error {
	if _, err := f.GetBackup(context.Background(), id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVerifier struct {
	valid bool
	err   error
}

func (v fakeVerifier) VerifyBackup(context.Context, string) (*backup.VerifyResult, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &backup.VerifyResult{Valid: v.valid, Message: "checked"}, nil
}

func (v fakeVerifier) VerifyDeep(context.Context, string) (*backup.DeepVerifyResult, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &backup.DeepVerifyResult{Valid: v.valid, Message: "deep"}, nil
}

type fakeRestores struct {
	sessions *restore.SessionStore
	err      error
	opts     restore.Options
}

func (f *fakeRestores) StartRestore(_ context.Context, _ string, opts restore.Options) (string, error) {
	f.opts = opts
	return "restore-1", f.err
}

func (f *fakeRestores) Sessions() *restore.SessionStore { return f.sessions }

type fakeMaintenance struct {
	active bool
}

func (m *fakeMaintenance) State() maintenance.State {
	return maintenance.State{Maintenance: m.active, Services: []string{"scheduler"}}
}

func (m *fakeMaintenance) Active() bool { return m.active }

type fakeSchedules struct {
	reloads int
	err     error
}

func (s *fakeSchedules) Entries() []scheduler.Entry {
	return []scheduler.Entry{{ID: "nightly", Spec: "30 2 * * *"}, {ID: scheduler.RetentionJobID, Spec: scheduler.RetentionSpec}}
}

func (s *fakeSchedules) Running() bool { return true }

func (s *fakeSchedules) Reload(context.Context) error {
	s.reloads++
	return s.err
}

func (s *fakeSchedules) RunRetention(context.Context) (*backup.CleanupSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backup.CleanupSummary{RetentionDays: 30, Deleted: []string{"old-1", "old-2"}}, nil
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	server      http.Handler
	backups     *fakeBackups
	restores    *fakeRestores
	maintenance *fakeMaintenance
	schedules   *fakeSchedules
	audit       *audit.MemoryStore
}

func newTestAPI(t *testing.T, mutate func(*Deps)) *testAPI {
	t.Helper()

	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	env := &testAPI{
		backups: &fakeBackups{records: []*backup.Record{
			{ID: "b1", Status: backup.StatusUploaded, CreatedAt: created},
			{ID: "b2", Status: backup.StatusFailed, CreatedAt: created},
		}},
		restores:    &fakeRestores{sessions: restore.NewSessionStore(time.Hour, 10)},
		maintenance: &fakeMaintenance{},
		schedules:   &fakeSchedules{},
		audit:       audit.NewMemoryStore(10),
	}

	deps := Deps{
		Backups:        env.backups,
		Verifier:       fakeVerifier{valid: true},
		Restores:       env.restores,
		Maintenance:    env.maintenance,
		Schedules:      env.schedules,
		Audit:          env.audit,
		Database:       fakePinger{},
		AllowedOrigins: []string{"https://ops.example.com"},
		Version:        "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	h, err := NewHandler(deps)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 0
	cfg.HeavyRateLimitRequests = 0
	env.server = NewRouter(h, cfg).Setup()
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (e *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

var errBoom = errors.New("boom")
