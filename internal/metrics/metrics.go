// Package metrics registers the prometheus collectors for webhook ingest and
// the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	WebhookEvents     *prometheus.CounterVec
	PaymentAnomalies  *prometheus.CounterVec
	ReconcileRuns     prometheus.Counter
	ReconcileStep     *prometheus.CounterVec
	ReconcileErrors   *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	Suspensions       prometheus.Counter
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		PaymentAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_payment_anomalies_total",
			Help: "Payment events requiring manual reconciliation.",
		}, []string{"reason"}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_reconcile_runs_total",
			Help: "Completed reconciliation ticks.",
		}),
		ReconcileStep: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_reconcile_step_processed_total",
			Help: "Entities processed per reconciliation step.",
		}, []string{"step"}),
		ReconcileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_reconcile_step_errors_total",
			Help: "Per-venue failures per reconciliation step.",
		}, []string{"step"}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_reconcile_duration_seconds",
			Help:    "Wall time of a full reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		}),
		Suspensions: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_subscription_suspensions_total",
			Help: "Subscriptions suspended after grace expiry.",
		}),
	}
}
