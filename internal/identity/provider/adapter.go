package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymodels "profileclaim/internal/identity/models"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/circuit"
)

const DefaultTimeout = 10 * time.Second

type Metrics struct {
	Calls        *prometheus.CounterVec
	Duration     prometheus.Histogram
	CircuitState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profileclaim_identity_provider_calls_total",
			Help: "Identity provider calls by outcome (verified, unverified, or an error category)",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "profileclaim_identity_provider_duration_seconds",
			Help:    "Identity provider call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		CircuitState: f.NewGauge(prometheus.GaugeOpts{
			Name: "profileclaim_identity_provider_circuit_open",
			Help: "1 while the identity provider circuit breaker is open",
		}),
	}
}

// Adapter bounds provider calls with a timeout and a circuit breaker and
// applies the configured unavailability Mode. It is the only place that
// decides what "no answer" means.
type Adapter struct {
	provider Provider
	mode     Mode
	timeout  time.Duration
	breaker  *circuit.Breaker
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type AdapterOption func(*Adapter)

func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) AdapterOption {
	return func(a *Adapter) { a.breaker = b }
}

func WithMetrics(m *Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger }
}

func NewAdapter(p Provider, mode Mode, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		provider: p,
		mode:     mode,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("profileclaim/identity/provider"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.breaker == nil {
		a.breaker = circuit.New(p.ID())
	}
	return a
}

func (a *Adapter) Mode() Mode { return a.mode }

// Verify asks the provider about identity. In strict mode an unavailable
// provider yields a service_unavailable error; in permissive mode it yields
// verified=true. A provider "false" is never an error. A cancelled or expired
// caller context yields a timeout error in both modes.
func (a *Adapter) Verify(ctx context.Context, identity identitymodels.DeclaredIdentity) (bool, error) {
	ctx, span := a.tracer.Start(ctx, "identity.provider.verify",
		trace.WithAttributes(
			attribute.String("provider.id", a.provider.ID()),
			attribute.String("provider.mode", string(a.mode)),
		))
	defer span.End()

	verified, err := a.call(ctx, identity)
	if err == nil {
		span.SetAttributes(attribute.Bool("identity.verified", verified))
		return verified, nil
	}

	category := CategoryOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(category))

	// A caller that gave up is not provider unavailability in either mode.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "request ended before identity verification completed")
	}

	if a.mode == ModePermissive {
		a.logger.WarnContext(ctx, "identity provider unavailable, treating as verified (permissive mode)",
			"provider", a.provider.ID(),
			"category", category,
			"error", err,
		)
		return true, nil
	}
	a.logger.ErrorContext(ctx, "identity provider unavailable",
		"provider", a.provider.ID(),
		"category", category,
		"error", err,
	)
	return false, dErrors.Wrap(err, dErrors.CodeServiceUnavailable,
		"identity verification service is currently unavailable")
}

func (a *Adapter) call(ctx context.Context, identity identitymodels.DeclaredIdentity) (bool, error) {
	if !a.breaker.Allow() {
		a.observe("circuit_open", 0)
		return false, NewError(ErrorCircuitOpen, a.provider.ID(), "circuit open", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	verified, err := a.provider.Verify(callCtx, identity)
	elapsed := time.Since(start)

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && CategoryOf(err) != ErrorTimeout {
			err = NewError(ErrorTimeout, a.provider.ID(), "deadline exceeded", err)
		}
		_, change := a.breaker.RecordFailure()
		a.onChange(ctx, change)
		a.observe(string(CategoryOf(err)), elapsed)
		return false, err
	}

	_, change := a.breaker.RecordSuccess()
	a.onChange(ctx, change)
	if verified {
		a.observe("verified", elapsed)
	} else {
		a.observe("unverified", elapsed)
	}
	return verified, nil
}

func (a *Adapter) observe(outcome string, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.Calls.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		a.metrics.Duration.Observe(elapsed.Seconds())
	}
}

func (a *Adapter) onChange(ctx context.Context, change circuit.StateChange) {
	switch {
	case change.Opened:
		a.logger.WarnContext(ctx, "identity provider circuit opened", "provider", a.provider.ID())
		if a.metrics != nil {
			a.metrics.CircuitState.Set(1)
		}
	case change.Closed:
		a.logger.InfoContext(ctx, "identity provider circuit closed", "provider", a.provider.ID())
		if a.metrics != nil {
			a.metrics.CircuitState.Set(0)
		}
	}
}
