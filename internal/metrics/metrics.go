// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_backups_total",
			Help: "Total number of backup runs by type and final status",
		},
		[]string{"type", "status"},
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbwarden_backup_duration_seconds",
			Help:    "Backup duration in seconds, dump through uploads",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"type"},
	)

	BackupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbwarden_backup_size_bytes",
			Help: "Size of the most recent successful backup artifact",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_uploads_total",
			Help: "Total number of artifact uploads by location and result",
		},
		[]string{"location", "result"}, // result: "success", "failure"
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_verifications_total",
			Help: "Total number of verifications by mode and result",
		},
		[]string{"mode", "result"}, // mode: "shallow", "deep"; result: "valid", "invalid", "error"
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbwarden_retention_deleted_total",
			Help: "Total number of backups deleted by retention cleanup",
		},
	)

	ScheduleSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_schedule_skipped_total",
			Help: "Scheduled runs skipped because a previous run was still active or maintenance was on",
		},
		[]string{"schedule"},
	)

	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_restores_total",
			Help: "Total number of restores by path and result",
		},
		[]string{"path", "result"}, // path: "exclusive", "online"
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbwarden_restore_duration_seconds",
			Help:    "Restore duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
	)

	RestoreSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbwarden_restore_sessions",
			Help: "Number of restore sessions held for polling",
		},
	)

	MaintenanceMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbwarden_maintenance_mode",
			Help: "1 while maintenance mode is active",
		},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_events_published_total",
			Help: "Total number of events published to the message bus",
		},
		[]string{"topic", "result"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbwarden_ws_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbwarden_ws_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_ws_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbwarden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbwarden_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbwarden_circuit_breaker_state",
			Help: "Storage circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbwarden_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbwarden_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBackup records a finished backup run
func RecordBackup(backupType, status string, duration time.Duration, size int64) {
	BackupsTotal.WithLabelValues(backupType, status).Inc()
	BackupDuration.WithLabelValues(backupType).Observe(duration.Seconds())
	if size > 0 {
		BackupSize.Set(float64(size))
	}
}

// RecordUpload records an upload attempt
func RecordUpload(location, result string) {
	UploadsTotal.WithLabelValues(location, result).Inc()
}

// RecordVerification records a verification outcome
func RecordVerification(mode, result string) {
	VerificationsTotal.WithLabelValues(mode, result).Inc()
}

// RecordRetentionDeleted adds n deleted backups
func RecordRetentionDeleted(n int) {
	if n > 0 {
		RetentionDeleted.Add(float64(n))
	}
}

// RecordScheduleSkipped records a skipped scheduled run
func RecordScheduleSkipped(schedule string) {
	ScheduleSkipped.WithLabelValues(schedule).Inc()
}

// RecordRestore records a finished restore
func RecordRestore(path, result string, duration time.Duration) {
	if path == "" {
		path = "none"
	}
	RestoresTotal.WithLabelValues(path, result).Inc()
	RestoreDuration.Observe(duration.Seconds())
}

// SetRestoreSessions sets the number of retained restore sessions
func SetRestoreSessions(n int) {
	RestoreSessions.Set(float64(n))
}

// SetMaintenanceMode sets the maintenance gauge
func SetMaintenanceMode(active bool) {
	MaintenanceMode.Set(boolToFloat(active))
}

// RecordEventPublished records a bus publish attempt
func RecordEventPublished(topic string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments/decrements active request counter
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

// SetAppInfo publishes the build version
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}

// StatusCode formats an HTTP status for the status_code label
func StatusCode(code int) string {
	return strconv.Itoa(code)
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
