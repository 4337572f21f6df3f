// Package metrics holds the Prometheus instruments for the orchestration
// layer. Importing the package registers them; main exposes /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_workflows_started_total",
			Help: "Total number of workflows started",
		},
		[]string{"workflow_type", "queue"},
	)

	WorkflowStartsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_workflow_starts_rejected_total",
			Help: "Duplicate workflow starts rejected by id policy",
		},
		[]string{"workflow_type"},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_workflows_completed_total",
			Help: "Total number of workflows completed",
		},
		[]string{"workflow_type", "status"},
	)

	// Signal metrics
	SignalsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_signals_delivered_total",
			Help: "Signals delivered to running workflow instances",
		},
		[]string{"signal"},
	)

	// Activity metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_messages_sent_total",
			Help: "Outbound WhatsApp messages by kind",
		},
		[]string{"kind"},
	)

	ThirdPartyCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_third_party_calls_total",
			Help: "Third-party API calls by target and outcome",
		},
		[]string{"target", "outcome"},
	)

	ThirdPartyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velia_third_party_latency_seconds",
			Help:    "Third-party API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// Payment funnel
	CheckoutSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velia_checkout_sessions_created_total",
			Help: "Stripe checkout sessions created",
		},
	)

	PaymentsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velia_payments_expired_total",
			Help: "Payment workflows that timed out before a completion signal",
		},
	)

	// Follow-up lifecycle
	FollowUpTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velia_followup_transitions_total",
			Help: "Follow-up records transitioned out of pending",
		},
		[]string{"status"},
	)
)
