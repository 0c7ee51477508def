// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for go-docvault.
// It exposes operation counters and latency histograms for the key,
// envelope, local storage and sync paths, plus gauges for session state
// and records awaiting upload.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all docvault metrics
	Namespace = "docvault"

	// Label names
	LabelOperation  = "operation"
	LabelComponent  = "component"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelCategory   = "category"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpDerive      = "derive"
	OpWrap        = "wrap"
	OpUnwrap      = "unwrap"
	OpEncrypt     = "encrypt"
	OpDecrypt     = "decrypt"
	OpLocalSave   = "local_save"
	OpLocalRead   = "local_read"
	OpLocalDelete = "local_delete"
	OpUpsert      = "upsert"
	OpFlush       = "flush"
	OpAudit       = "audit"
)

var (
	// OperationsTotal tracks operations by name, component and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of docvault operations by type, component, and status",
		},
		[]string{LabelOperation, LabelComponent, LabelStatus},
	)

	// OperationDuration tracks the duration of operations in seconds.
	// PBKDF2 derivation dominates the upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of docvault operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOperation, LabelComponent},
	)

	// ErrorsTotal tracks errors by operation, component and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, component, and error type",
		},
		[]string{LabelOperation, LabelComponent, LabelErrorType},
	)

	// SessionUnlocked is 1 while a DEK is loaded and 0 otherwise.
	SessionUnlocked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_unlocked",
			Help:      "Whether the key session currently holds a DEK (1) or is locked (0)",
		},
	)

	// PendingRecords tracks records waiting for cloud upload per category.
	PendingRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "pending_records",
			Help:      "Number of records waiting for cloud upload by category",
		},
		[]string{LabelCategory},
	)

	// FlushesTotal tracks completed sync flushes per category and status.
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "flushes_total",
			Help:      "Total number of sync flushes by category and status",
		},
		[]string{LabelCategory, LabelStatus},
	)

	// HTTPRequestsTotal tracks sync server requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	err := store.SaveEncrypted(ctx, category, id, payload)
//	metrics.RecordOperation(metrics.OpLocalSave, "local", statusOf(err), time.Since(start).Seconds())
func RecordOperation(operation, component, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, component, status).Inc()
	OperationDuration.WithLabelValues(operation, component).Observe(duration)
}

// Observe records an operation that started at start and finished with err.
// A non-nil err is also counted in ErrorsTotal under errorType "error".
func Observe(operation, component string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(operation, component, "error")
	}
	RecordOperation(operation, component, status, time.Since(start).Seconds())
}

// RecordError records an error event with context about where it occurred.
func RecordError(operation, component, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, component, errorType).Inc()
}

// SetSessionUnlocked reports the key session state.
func SetSessionUnlocked(unlocked bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if unlocked {
		value = 1.0
	}
	SessionUnlocked.Set(value)
}

// SetPendingRecords sets the number of records awaiting upload.
func SetPendingRecords(category string, count int) {
	if !enabled.Load() {
		return
	}
	PendingRecords.WithLabelValues(category).Set(float64(count))
}

// RecordFlush counts a finished flush for category.
func RecordFlush(category, status string) {
	if !enabled.Load() {
		return
	}
	FlushesTotal.WithLabelValues(category, status).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
