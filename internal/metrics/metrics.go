// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attempts counts ledger entries by action and reason.
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sala",
		Name:      "attendance_attempts_total",
		Help:      "Check-in and check-out attempts by outcome reason.",
	}, []string{"action", "reason"})

	// TokenVerifications counts QR token checks by result (ok, expired, invalid).
	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sala",
		Name:      "token_verifications_total",
		Help:      "QR token verifications by result.",
	}, []string{"result"})

	// SessionsGenerated counts sessions created from the timetable.
	SessionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sala",
		Name:      "sessions_generated_total",
		Help:      "Sessions created by timetable auto-generation.",
	})

	// RateLimited counts requests rejected by the HTTP limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sala",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-IP limiter.",
	})
)
