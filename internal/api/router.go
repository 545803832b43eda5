// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/dbwarden/internal/middleware"
)

// Router wires handlers and middleware.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router; a nil config uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, config *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(config),
	}
}

// restorePollingExempt keeps restore session endpoints reachable during
// maintenance so clients can follow the restore that caused it.
func restorePollingExempt(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/v1/restores")
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	h := router.handler
	heavy := router.chiMiddleware.HeavyRateLimit()
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(middleware.MaintenanceGuard(h.deps.Maintenance, restorePollingExempt))

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", h.ListBackups)
				r.With(heavy).Post("/", h.CreateBackup)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetBackup)
					r.Delete("/", h.DeleteBackup)
					r.Post("/verify", h.VerifyBackup)
					r.With(heavy).Post("/verify/deep", h.VerifyBackupDeep)
					r.With(heavy).Post("/restore", h.StartRestore)
				})
			})

			r.Route("/restores", func(r chi.Router) {
				r.Get("/", h.ListRestores)
				r.Get("/{restoreID}", h.GetRestore)
				r.Delete("/{restoreID}", h.DeleteRestore)
			})

			r.Get("/maintenance", h.Maintenance)
			r.Get("/schedules", h.ListSchedules)
			r.Post("/schedules/reload", h.ReloadSchedules)
			r.Post("/retention/run", h.RunRetention)
			r.Get("/audit", h.ListAudit)
		})
	})

	return r
}
