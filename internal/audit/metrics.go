package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers ledger metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profileclaim_audit_entries_recorded_total",
			Help: "Admin audit entries written, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_audit_persist_failures_total",
			Help: "Admin audit entries that failed to persist; the admin action was aborted",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "profileclaim_audit_persist_duration_seconds",
			Help:    "Time spent writing one audit entry",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
