// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cliniccloud"

var (
	// TenantsByPlan is refreshed by the nightly plan-mix job.
	TenantsByPlan = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tenants_by_plan",
		Help:      "Number of tenants on each subscription plan.",
	}, []string{"plan"})

	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Payment provider webhook requests by event type and outcome.",
	}, []string{"event_type", "outcome"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Payment provider webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// GateDenialsTotal counts plan gate refusals; reason is trial_expired or
	// limit_reached.
	GateDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plan",
		Name:      "gate_denials_total",
		Help:      "Creates refused by the trial and plan gate.",
	}, []string{"resource", "reason"})

	TrialRemindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "trial_reminders_total",
		Help:      "Trial expiry reminders sent by sweep and outcome.",
	}, []string{"sweep", "outcome"})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "registrations_total",
		Help:      "Registration attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	AccessDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_denied_total",
		Help:      "Requests refused by tenant isolation.",
	})

	EntitiesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "entities_created_total",
		Help:      "Tenant-owned entities created, by kind.",
	}, []string{"kind"})

	AnalyticsExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "exports_total",
		Help:      "Analytics spreadsheet exports generated.",
	})
)
