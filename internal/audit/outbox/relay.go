// Package outbox relays committed audit entries from the outbox table to the
// event bus. Delivery is at-least-once; consumers dedupe on the record key.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"profileclaim/internal/store"
)

type Source interface {
	DrainOutbox(ctx context.Context, limit int, publish store.PublishFunc) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msgs []store.OutboxMessage) ([]uuid.UUID, error)
}

type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_outbox_published_total",
			Help: "Outbox messages delivered to the event bus",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "profileclaim_outbox_publish_failures_total",
			Help: "Relay batches that failed to publish completely",
		}),
	}
}

type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(source Source, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled. A full batch
// triggers an immediate next drain.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "outbox relay batch failed", "delivered", n, "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce delivers at most one batch and returns how many were accepted.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	n, err := r.source.DrainOutbox(ctx, r.batchSize, r.publisher.Publish)
	if r.metrics != nil {
		r.metrics.Published.Add(float64(n))
		if err != nil {
			r.metrics.PublishFailures.Inc()
		}
	}
	return n, err
}
