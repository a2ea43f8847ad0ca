// Package metrics exposes Prometheus instruments for the remediation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codeweaver"

var (
	// AlertsReceivedTotal counts alert webhooks by source and outcome.
	AlertsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingress",
		Name:      "alerts_received_total",
		Help:      "Alert webhooks received by source and outcome.",
	}, []string{"source", "outcome"})

	// DiagnosesTotal counts diagnoses by outcome (diagnosed, degraded, empty).
	DiagnosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "diagnosis",
		Name:      "total",
		Help:      "Diagnoses produced by outcome.",
	}, []string{"outcome"})

	// PlansSynthesizedTotal counts plans by action and strategy.
	PlansSynthesizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "planner",
		Name:      "plans_total",
		Help:      "Plans synthesized by action type and strategy (runbook, oracle, fallback).",
	}, []string{"action", "strategy"})

	// SafetyFindingsTotal counts gate findings by category.
	SafetyFindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "safety",
		Name:      "findings_total",
		Help:      "Safety gate findings by category.",
	}, []string{"category"})

	// DecisionsTotal counts operator decisions.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "decisions_total",
		Help:      "Operator decisions on pending plans.",
	}, []string{"decision"})

	// PendingPlans is 1 while a plan awaits a decision.
	PendingPlans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "pending_plans",
		Help:      "Plans awaiting an operator decision.",
	})

	// ExecutionsTotal counts executions by action and result status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Plan executions by action type and result status.",
	}, []string{"action", "status"})

	// ExecutionDuration tracks executor latency per action.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "duration_seconds",
		Help:      "Plan execution duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	// OracleRequestDuration tracks Oracle latency by provider and outcome.
	OracleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Oracle request duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "outcome"})

	// OracleBreakerState is 0 closed, 1 open, 2 half-open.
	OracleBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "breaker_state",
		Help:      "Oracle circuit breaker state (0 closed, 1 open, 2 half-open).",
	}, []string{"provider"})
)

// RecordExecution records one executor run.
func RecordExecution(action, status string, d time.Duration) {
	ExecutionsTotal.WithLabelValues(action, status).Inc()
	ExecutionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordOracleRequest records one Oracle call.
func RecordOracleRequest(provider, outcome string, d time.Duration) {
	OracleRequestDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}
