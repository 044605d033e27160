// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mysurvey/mysurvey/internal/auth"
)

// Metrics contains custom Prometheus metrics for MySurvey.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	Lockouts       prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers custom MySurvey metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysurvey_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Lockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mysurvey_auth_lockouts_total",
				Help: "Total number of accounts locked after repeated login failures",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysurvey_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysurvey_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.Lockouts, m.HTTPRequests, m.HTTPDuration)

	return m
}

// RecordAuthOperation counts one auth operation.
func (m *Metrics) RecordAuthOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordLockout counts one account lockout.
func (m *Metrics) RecordLockout() {
	m.Lockouts.Inc()
}

// ObserveHTTPRequest records a served request. route is the matched route
// template, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ auth.Recorder = (*Metrics)(nil)
