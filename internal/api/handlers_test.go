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
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/audit"
	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/middleware"
	"github.com/tomtom215/dbwarden/internal/restore"
)

func TestNewHandlerRequiresDeps(t *testing.T) {
	if _, err := NewHandler(Deps{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestAPI(t, nil)
		rec, body := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var status HealthStatus
		if err := json.Unmarshal(body.Data, &status); err != nil {
			t.Fatal(err)
		}
		if status.Status != "ok" || status.Database != "connected" || status.Scheduler != "running" {
			t.Errorf("unexpected health %+v", status)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("expected security headers")
		}
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestAPI(t, func(d *Deps) { d.Database = fakePinger{err: errBoom} })
		rec, _ := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("maintenance", func(t *testing.T) {
		env := newTestAPI(t, func(d *Deps) { d.Database = fakePinger{err: errBoom} })
		env.maintenance.active = true
		rec, body := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 during maintenance, got %d", rec.Code)
		}
		var status HealthStatus
		if err := json.Unmarshal(body.Data, &status); err != nil {
			t.Fatal(err)
		}
		if status.Status != "maintenance" || !status.Maintenance {
			t.Errorf("expected maintenance status, got %+v", status)
		}
	})
}

func TestListBackups(t *testing.T) {
	env := newTestAPI(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/backups", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body.Meta == nil || body.Meta.Count == nil || *body.Meta.Count != 2 {
		t.Errorf("expected count 2, got %+v", body.Meta)
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/backups?status=failed", "")
	var records []backup.Record
	if err := json.Unmarshal(body.Data, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "b2" {
		t.Errorf("expected only b2, got %+v", records)
	}
}

func TestCreateBackup(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"empty body", "", http.StatusCreated},
		{"with options", `{"description":"before upgrade","storage_locations":["local","s3"],"dump_format":"sql"}`, http.StatusCreated},
		{"unknown location", `{"storage_locations":["ftp"]}`, http.StatusBadRequest},
		{"bad format", `{"dump_format":"tar"}`, http.StatusBadRequest},
		{"unknown field", `{"type":"scheduled"}`, http.StatusBadRequest},
		{"malformed", `{"description":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestAPI(t, nil)
			rec, body := env.do(t, http.MethodPost, "/api/v1/backups", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusCreated {
				if body.Error == nil || body.Success {
					t.Errorf("expected error envelope, got %+v", body)
				}
				return
			}
			if len(env.backups.created) != 1 || env.backups.created[0].Type != backup.TypeManual {
				t.Errorf("expected one manual backup request, got %+v", env.backups.created)
			}
		})
	}
}

func TestCreateBackupMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{backup.ErrMaintenanceActive, http.StatusServiceUnavailable},
		{backup.ErrBackupsDisabled, http.StatusServiceUnavailable},
		{errBoom, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env := newTestAPI(t, nil)
		env.backups.err = tt.err
		rec, body := env.do(t, http.MethodPost, "/api/v1/backups", "")
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
		if tt.want == http.StatusInternalServerError && strings.Contains(body.Error.Message, "boom") {
			t.Error("expected internal error text hidden")
		}
		wantRetry := ""
		if errors.Is(tt.err, backup.ErrMaintenanceActive) {
			wantRetry = middleware.MaintenanceRetryAfter
		}
		if got := rec.Header().Get("Retry-After"); got != wantRetry {
			t.Errorf("%v: expected Retry-After %q, got %q", tt.err, wantRetry, got)
		}
	}
}

func TestGetAndDeleteBackup(t *testing.T) {
	env := newTestAPI(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/backups/b1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got backup.Record
	if err := json.Unmarshal(body.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "b1" {
		t.Errorf("expected b1, got %s", got.ID)
	}

	rec, body = env.do(t, http.MethodGet, "/api/v1/backups/missing", "")
	if rec.Code != http.StatusNotFound || body.Error.Code != ErrCodeNotFound {
		t.Errorf("expected 404 NOT_FOUND, got %d %+v", rec.Code, body.Error)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/backups/b1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(env.backups.deleted) != 1 || env.backups.deleted[0] != "b1" {
		t.Errorf("expected b1 deleted, got %v", env.backups.deleted)
	}
}

func TestVerifyBackup(t *testing.T) {
	env := newTestAPI(t, func(d *Deps) { d.Verifier = fakeVerifier{valid: false} })

	rec, body := env.do(t, http.MethodPost, "/api/v1/backups/b1/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res backup.VerifyResult
	if err := json.Unmarshal(body.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("expected invalid result passed through")
	}

	env = newTestAPI(t, func(d *Deps) { d.Verifier = fakeVerifier{err: backup.ErrDeepVerifyDisabled} })
	rec, _ = env.do(t, http.MethodPost, "/api/v1/backups/b1/verify/deep", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for disabled deep verify, got %d", rec.Code)
	}
}

func TestStartRestore(t *testing.T) {
	env := newTestAPI(t, nil)

	rec, body := env.do(t, http.MethodPost, "/api/v1/backups/b1/restore",
		`{"confirmation_text":"RESTORE","drop_database":true,"user_id":"u1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted RestoreAccepted
	if err := json.Unmarshal(body.Data, &accepted); err != nil {
		t.Fatal(err)
	}
	if accepted.RestoreID != "restore-1" || accepted.BackupID != "b1" {
		t.Errorf("unexpected body %+v", accepted)
	}
	if rec.Header().Get("Location") != "/api/v1/restores/restore-1" {
		t.Errorf("unexpected Location %q", rec.Header().Get("Location"))
	}
	if !env.restores.opts.DropDatabase || env.restores.opts.UserID != "u1" {
		t.Errorf("expected options passed through, got %+v", env.restores.opts)
	}
}

func TestStartRestoreErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{restore.ErrConfirmationRequired, http.StatusPreconditionFailed},
		{restore.ErrRestoreInProgress, http.StatusConflict},
	}
	for _, tt := range tests {
		env := newTestAPI(t, nil)
		env.restores.err = tt.err
		rec, body := env.do(t, http.MethodPost, "/api/v1/backups/b1/restore", "")
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
			continue
		}
		details, ok := body.Error.Details.(map[string]interface{})
		if !ok || details["restore_id"] != "restore-1" {
			t.Errorf("%v: expected restore_id in details, got %+v", tt.err, body.Error.Details)
		}
	}
}

func TestRestoreSessions(t *testing.T) {
	env := newTestAPI(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/restores", "")
	if rec.Code != http.StatusOK || body.Meta.Count == nil || *body.Meta.Count != 0 {
		t.Errorf("expected empty session list, got %d %+v", rec.Code, body.Meta)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/restores/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/restores/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMaintenanceModeBlocksMutations(t *testing.T) {
	env := newTestAPI(t, nil)
	env.maintenance.active = true

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/v1/backups", http.StatusOK},
		{http.MethodPost, "/api/v1/backups", http.StatusServiceUnavailable},
		{http.MethodDelete, "/api/v1/backups/b1", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/backups/b1/restore", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/retention/run", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/restores/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/maintenance", http.StatusOK},
	}
	for _, tt := range tests {
		rec, _ := env.do(t, tt.method, tt.path, "")
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
	if len(env.backups.created) != 0 || len(env.backups.deleted) != 0 {
		t.Error("expected no mutations during maintenance")
	}
}

func TestSchedules(t *testing.T) {
	env := newTestAPI(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/schedules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status struct {
		Running bool `json:"running"`
		Entries []struct {
			ID string `json:"id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body.Data, &status); err != nil {
		t.Fatal(err)
	}
	if !status.Running || len(status.Entries) != 2 {
		t.Errorf("unexpected schedule status %+v", status)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/schedules/reload", "")
	if rec.Code != http.StatusOK || env.schedules.reloads != 1 {
		t.Errorf("expected reload, got %d (%d reloads)", rec.Code, env.schedules.reloads)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/retention/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary backup.CleanupSummary
	if err := json.Unmarshal(body.Data, &summary); err != nil {
		t.Fatal(err)
	}
	if len(summary.Deleted) != 2 {
		t.Errorf("expected 2 deleted, got %v", summary.Deleted)
	}

	noScheduler := newTestAPI(t, func(d *Deps) { d.Schedules = nil })
	rec, _ = noScheduler.do(t, http.MethodGet, "/api/v1/schedules", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without scheduler, got %d", rec.Code)
	}
}

func TestListAudit(t *testing.T) {
	env := newTestAPI(t, nil)
	now := time.Now().UTC()
	for i, status := range []audit.Status{audit.StatusSuccess, audit.StatusFailed, audit.StatusSuccess} {
		entry := &audit.Entry{
			ID:         "e" + string(rune('0'+i)),
			ScheduleID: audit.ScheduleManual,
			BackupID:   "b1",
			Status:     status,
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
		}
		if err := env.audit.Save(context.Background(), entry); err != nil {
			t.Fatal(err)
		}
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/audit?status=success", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []audit.Entry
	if err := json.Unmarshal(body.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 success entries, got %d", len(entries))
	}

	for _, q := range []string{"limit=0", "limit=abc", "limit=5000", "since=yesterday"} {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/audit?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestAPI(t, nil)
	env.do(t, http.MethodGet, "/api/v1/health", "")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dbwarden_") {
		t.Error("expected dbwarden metrics in exposition")
	}
}

func TestWebSocketOrigin(t *testing.T) {
	h, err := NewHandler(Deps{
		Backups:        &fakeBackups{},
		Verifier:       fakeVerifier{},
		Restores:       &fakeRestores{},
		Maintenance:    &fakeMaintenance{},
		AllowedOrigins: []string{"https://ops.example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://ops.example.com", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkWebSocketOrigin(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}

	rec := httptest.NewRecorder()
	h.WebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a hub, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h, err := NewHandler(Deps{
		Backups:     &fakeBackups{},
		Verifier:    fakeVerifier{},
		Restores:    &fakeRestores{sessions: restore.NewSessionStore(time.Hour, 10)},
		Maintenance: &fakeMaintenance{},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.HeavyRateLimitRequests = 0
	server := NewRouter(h, cfg).Setup()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		server.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200, 200, 429, got %v", codes)
	}
}

func TestHeavyRateLimit(t *testing.T) {
	h, err := NewHandler(Deps{
		Backups:     &fakeBackups{},
		Verifier:    fakeVerifier{},
		Restores:    &fakeRestores{sessions: restore.NewSessionStore(time.Hour, 10)},
		Maintenance: &fakeMaintenance{},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 0
	cfg.HeavyRateLimitRequests = 1
	server := NewRouter(h, cfg).Setup()

	send := func(method, path string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.20:5000"
		server.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPost, "/api/v1/backups"); code != http.StatusCreated {
		t.Fatalf("expected first backup accepted, got %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/backups"); code != http.StatusTooManyRequests {
		t.Errorf("expected second backup limited, got %d", code)
	}
	if code := send(http.MethodGet, "/api/v1/backups"); code != http.StatusOK {
		t.Errorf("expected reads unaffected, got %d", code)
	}
}
