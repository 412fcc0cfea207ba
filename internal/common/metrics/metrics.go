// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompletionRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_completion_recomputes_total",
			Help: "Total number of completion percentage recomputations",
		},
		[]string{"trigger"},
	)

	CompletionRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "lifecycle_completion_recompute_duration_seconds",
			Help: "Duration of a write-and-recompute transaction in seconds",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_status_transitions_total",
			Help: "Total number of application status transitions",
		},
		[]string{"from", "to", "trigger"},
	)

	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_rejected_total",
			Help: "Total number of transitions rejected by a guard",
		},
		[]string{"trigger", "reason"},
	)

	AutomationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dispatch_runs_total",
			Help: "Total number of dispatcher invocations",
		},
		[]string{"outcome"},
	)

	AutomationEmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_emails_sent_total",
			Help: "Total number of automation emails attempted",
		},
		[]string{"status"},
	)

	AutomationClaimsLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "automation_claims_lost_total",
			Help: "Total number of due automations claimed by a concurrent invocation",
		},
	)

	SchemaCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_cache_requests_total",
			Help: "Schema cache lookups by result",
		},
		[]string{"result"},
	)
)
