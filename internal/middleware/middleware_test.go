// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

func TestRequestID(t *testing.T) {
	var seen, seenLogging string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		seenLogging = logging.RequestIDFromContext(r.Context())
	}))

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("expected generated request id")
		}
		if rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
		}
		if seenLogging != seen {
			t.Errorf("expected logging context id %q, got %q", seen, seenLogging)
		}
	})

	t.Run("reuses upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "upstream-123" {
			t.Errorf("expected upstream-123, got %q", seen)
		}
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if len(seen) > 128 {
			t.Errorf("expected oversized id replaced, got %d chars", len(seen))
		}
	})
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/v1/backups/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/backups/{id}", "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backups/abc", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected 1 request recorded under the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.APIActiveRequests); got != 0 {
		t.Errorf("expected no active requests, got %v", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS behind a TLS proxy")
	}
}

type fakeState bool

func (s fakeState) Active() bool { return bool(s) }

func TestMaintenanceGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	exempt := func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/api/v1/restores/") }

	tests := []struct {
		name   string
		active bool
		method string
		path   string
		want   int
	}{
		{"inactive post", false, http.MethodPost, "/api/v1/backups", http.StatusNoContent},
		{"active get", true, http.MethodGet, "/api/v1/backups", http.StatusNoContent},
		{"active post", true, http.MethodPost, "/api/v1/backups", http.StatusServiceUnavailable},
		{"active delete", true, http.MethodDelete, "/api/v1/backups/b1", http.StatusServiceUnavailable},
		{"active exempt delete", true, http.MethodDelete, "/api/v1/restores/r1", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := MaintenanceGuard(fakeState(tt.active), exempt)(ok)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusServiceUnavailable {
				if rec.Header().Get("Retry-After") != MaintenanceRetryAfter {
					t.Error("expected Retry-After header")
				}
				if !strings.Contains(rec.Body.String(), "MAINTENANCE_MODE") {
					t.Errorf("expected MAINTENANCE_MODE body, got %s", rec.Body.String())
				}
			}
		})
	}
}
