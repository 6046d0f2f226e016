package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	adminhandler "profileclaim/internal/admin/handler"
	adminmetrics "profileclaim/internal/admin/metrics"
	adminservice "profileclaim/internal/admin/service"
	"profileclaim/internal/audit"
	"profileclaim/internal/audit/outbox"
	claimshandler "profileclaim/internal/claims/handler"
	claimsmetrics "profileclaim/internal/claims/metrics"
	claimsservice "profileclaim/internal/claims/service"
	httpapi "profileclaim/internal/http"
	identityhandler "profileclaim/internal/identity/handler"
	"profileclaim/internal/identity/provider"
	identityservice "profileclaim/internal/identity/service"
	"profileclaim/internal/identity/throttle"
	jwttoken "profileclaim/internal/jwt_token"
	"profileclaim/internal/platform/config"
	"profileclaim/internal/platform/httpserver"
	"profileclaim/internal/platform/logger"
	"profileclaim/internal/platform/metrics"
	"profileclaim/internal/platform/redis"
	"profileclaim/internal/store"
)

// main wires the process and keeps its lifecycle small. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "profileclaim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	health := map[string]httpapi.HealthCheck{}

	st, db, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		health["database"] = db.PingContext
	}

	limiter, closeRedis, err := openLimiter(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeRedis()

	mode, err := provider.ParseMode(cfg.Identity.Provider.Mode)
	if err != nil {
		return err
	}
	verifier := provider.NewAdapter(
		provider.NewNVIClient(cfg.Identity.Provider.URL),
		mode,
		provider.WithTimeout(cfg.Identity.Provider.Timeout),
		provider.WithMetrics(provider.NewMetrics(m.Registry)),
		provider.WithLogger(log),
	)
	log.Info("identity provider configured", "mode", mode, "timeout", cfg.Identity.Provider.Timeout)

	ledger := audit.New(st.AuditLog(), audit.WithLogger(log), audit.WithMetrics(audit.NewMetrics(m.Registry)))
	claims := claimsservice.New(st,
		claimsservice.WithLogger(log),
		claimsservice.WithMetrics(claimsmetrics.New(m.Registry)),
	)
	identity := identityservice.New(st, verifier, identityservice.NewBcryptHasher(cfg.Identity.HashCost),
		identityservice.WithLogger(log),
	)
	adjudicator := adminservice.New(st, ledger,
		adminservice.WithLogger(log),
		adminservice.WithMetrics(adminmetrics.New(m.Registry)),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Metrics:        m,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RequestTimeout: cfg.Server.RequestTimeout,
		User: []httpapi.Registrar{
			claimshandler.New(claims, log),
			identityhandler.New(identity, limiter, log),
		},
		Admin: []httpapi.Registrar{
			adminhandler.New(adjudicator, ledger, log),
		},
		Health: health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	relay, closeRelay, err := openRelay(ctx, cfg.Kafka, st, m, log)
	if err != nil {
		return err
	}
	defer closeRelay()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting profileclaim", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// openStore returns Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Database, log *slog.Logger) (store.Store, *sql.DB, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil, nil
	}
	db, err := store.Open(ctx, cfg.Driver, cfg.URL, cfg.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("postgres store ready", "driver", cfg.Driver)
	return store.NewPostgres(db), db, nil
}

// openLimiter prefers Redis so the submission throttle holds across replicas.
func openLimiter(ctx context.Context, cfg *config.Config, log *slog.Logger, health map[string]httpapi.HealthCheck) (throttle.Limiter, func(), error) {
	limit, window := cfg.Identity.Submit.Limit, cfg.Identity.Submit.Window
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, identity throttle is per-process")
		return throttle.NewMemory(limit, window), func() {}, nil
	}
	health["redis"] = client.Health
	return throttle.NewRedis(client.Client, limit, window), func() { _ = client.Close() }, nil
}

// openRelay starts forwarding the audit outbox when both Kafka and a durable
// store are configured.
func openRelay(ctx context.Context, cfg config.Kafka, st store.Store, m *metrics.Metrics, log *slog.Logger) (*outbox.Relay, func(), error) {
	noop := func() {}
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, noop, nil
	}
	source, ok := st.(*store.Postgres)
	if !ok {
		log.Warn("KAFKA_BROKERS set without DATABASE_URL, audit relay disabled")
		return nil, noop, nil
	}

	pub, err := outbox.NewKafkaPublisher(brokers, cfg.AuditTopic)
	if err != nil {
		return nil, noop, err
	}
	if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
		pub.Close()
		return nil, noop, err
	}
	relay := outbox.NewRelay(source, pub,
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(m.Registry)),
	)
	log.Info("audit outbox relay enabled", "topic", cfg.AuditTopic, "brokers", brokers)
	return relay, pub.Close, nil
}
