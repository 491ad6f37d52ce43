// Package metrics exposes prometheus instrumentation for the grant engine
// and the reconciliation job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	GrantsIssued   *prometheus.CounterVec
	GrantsSkipped  *prometheus.CounterVec
	GrantAmount    *prometheus.CounterVec
	ReconcilerRuns prometheus.Counter
	ReconcilerErrs prometheus.Counter
	JobDuration    *prometheus.HistogramVec
}

var Module = fx.Provide(New)

func New() *Metrics {
	return &Metrics{
		GrantsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditrail",
			Name:      "grants_issued_total",
			Help:      "Credit grants written to the ledger, by kind.",
		}, []string{"kind"}),
		GrantsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditrail",
			Name:      "grants_skipped_total",
			Help:      "Grant attempts that resolved to a skip, by reason.",
		}, []string{"reason"}),
		GrantAmount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditrail",
			Name:      "grant_credits_total",
			Help:      "Total credits issued, by kind.",
		}, []string{"kind"}),
		ReconcilerRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "creditrail",
			Name:      "reconciler_runs_total",
			Help:      "Completed reconciliation runs.",
		}),
		ReconcilerErrs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "creditrail",
			Name:      "reconciler_errors_total",
			Help:      "Reconciliation runs that returned an error.",
		}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "creditrail",
			Name:      "job_duration_seconds",
			Help:      "Duration of reconciler sweeps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) RecordGrant(kind string, amount int64) {
	if m == nil {
		return
	}
	m.GrantsIssued.WithLabelValues(kind).Inc()
	m.GrantAmount.WithLabelValues(kind).Add(float64(amount))
}

func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.GrantsSkipped.WithLabelValues(reason).Inc()
}
