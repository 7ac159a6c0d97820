package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms the reminder subsystem reports.
type Metrics struct {
	RemindersSent       *prometheus.CounterVec
	ReminderSendErrors  *prometheus.CounterVec
	AdherenceUpserts    *prometheus.CounterVec
	DosesMarkedMissed   prometheus.Counter
	ReconcileRuns       *prometheus.CounterVec
	ReconcileErrors     *prometheus.CounterVec
	DispatchDuration    prometheus.Histogram
	ReconcileDuration   prometheus.Histogram
	MiddlewareSkipped   prometheus.Counter
	EventPublishErrors  prometheus.Counter
}

// New creates and registers all subsystem metrics.
func New(namespace string) *Metrics {
	return &Metrics{
		RemindersSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder notifications sent, by period",
		}, []string{"period"}),
		ReminderSendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_send_errors_total",
			Help:      "Reminder notifications that failed to send, by period",
		}, []string{"period"}),
		AdherenceUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adherence_upserts_total",
			Help:      "Adherence record upserts, by outcome (inserted or duplicate)",
		}, []string{"outcome"}),
		DosesMarkedMissed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_marked_missed_total",
			Help:      "Pending doses flipped to Missed by reconciliation",
		}),
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation sweeps, by trigger (cron, middleware, manual)",
		}, []string{"trigger"}),
		ReconcileErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Reconciliation sweeps that failed, by trigger",
		}, []string{"trigger"}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one period's reminders",
			Buckets:   prometheus.DefBuckets,
		}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent in one reconciliation sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		MiddlewareSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "middleware_reconcile_skipped_total",
			Help:      "Request-triggered reconciliations skipped by the per-period throttle",
		}),
		EventPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Failed medications-updated event publications",
		}),
	}
}
