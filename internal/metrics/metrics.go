// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// mounting promhttp.Handler() in main.go is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "form_sessions_active",
			Help: "Number of form sessions currently held in memory.",
		})

	SessionEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "form_session_evict_total",
			Help: "Cumulative number of form sessions evicted from the store.",
		})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_submissions_total",
			Help: "Submit attempts by outcome (accepted, rejected, busy).",
		}, []string{"outcome"})

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_validation_failures_total",
			Help: "Field-level validation failures by field name.",
		}, []string{"field"})

	SubmissionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "account_submissions_in_flight",
			Help: "Submissions currently waiting out the submit delay.",
		})

	NotifyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_notify_errors_total",
			Help: "Notifier failures by notifier kind.",
		}, []string{"notifier"})

	FormGuardRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_guard_rejects_total",
			Help: "Posts refused before field validation (csrf, timing).",
		}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		SessionEvictTotal,
		SubmissionsTotal,
		ValidationFailuresTotal,
		SubmissionsInFlight,
		NotifyErrorsTotal,
		FormGuardRejectsTotal,
	)
}
