package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts adjudications and how long their transactions take.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	DecisionConflict prometheus.Counter
	DecisionDuration prometheus.Histogram
}

// New registers the admin metrics on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profileclaim_claim_decisions_total",
			Help: "Claims adjudicated by admins, by outcome",
		}, []string{"outcome"}),
		DecisionConflict: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_claim_decision_conflicts_total",
			Help: "Adjudications lost to a concurrent decision",
		}),
		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "profileclaim_claim_decision_duration_seconds",
			Help:    "Duration of approve/reject transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveDecision records the duration of an adjudication.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDecision(start time.Time) {
	m.DecisionDuration.Observe(time.Since(start).Seconds())
}
