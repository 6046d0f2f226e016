package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks claim starts and their outcomes.
type Metrics struct {
	ClaimsStarted  prometheus.Counter
	ClaimsDenied   *prometheus.CounterVec
	StartDuration  prometheus.Histogram
	ProfileUpdates prometheus.Counter
}

// New registers the claim metrics on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ClaimsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_claims_started_total",
			Help: "Claims created in pending_identity",
		}),
		ClaimsDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profileclaim_claims_denied_total",
			Help: "Claim starts refused, by error code",
		}, []string{"code"}),
		StartDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "profileclaim_claim_start_duration_seconds",
			Help:    "Duration of the StartClaim transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ProfileUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_profile_updates_total",
			Help: "Owner edits applied to claimed player profiles",
		}),
	}
}

// ObserveStart records the duration of a StartClaim call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStart(start time.Time) {
	m.StartDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDenied(code string) {
	m.ClaimsDenied.WithLabelValues(code).Inc()
}
