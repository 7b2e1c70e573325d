package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/coachgate/modules/billing"
	"github.com/dmitrymomot/coachgate/modules/coaching"
	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/httpserver"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/logger"
	"github.com/dmitrymomot/coachgate/pkg/metrics"
	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/quota"
	"github.com/dmitrymomot/coachgate/pkg/ratelimit"
	"github.com/dmitrymomot/coachgate/pkg/redis"
	"github.com/dmitrymomot/coachgate/pkg/requestid"
	"github.com/dmitrymomot/coachgate/pkg/storage/postgres"
	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadSettings()
	if err != nil {
		slog.Error("failed to load config", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.app.Env, cfg.app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("coachgate stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, log *slog.Logger) error {
	loc, err := time.LoadLocation(cfg.app.QuotaTimeZone)
	if err != nil {
		return fmt.Errorf("quota time zone: %w", err)
	}

	pool, err := pg.Connect(ctx, cfg.pg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, cfg.pg, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	counters, check, closeCounters, err := quotaStore(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer closeCounters()
	if check != nil {
		checks = append(checks, *check)
	}

	auth, err := jwt.New(cfg.jwt)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(cfg.ratelimit)
	if err != nil {
		return err
	}
	defer limiter.Close()

	m := metrics.New()

	policy := quota.DefaultPolicy()
	ledger := quota.NewLedger(counters, policy,
		quota.WithLocation(loc),
		quota.WithObserver(m),
		quota.WithLogger(log),
	)

	subs := subscription.NewService(postgres.NewRecords(pool), postgres.NewMappings(pool),
		subscription.WithLogger(log),
	)
	reconciler := subscription.NewReconciler(subs, subscription.WithReconcilerLogger(log))

	verifier := appstore.NewVerifier(cfg.appstore, appstore.WithLogger(log))
	billingOpts := []billing.Option{
		billing.WithAuth(auth),
		billing.WithMetrics(m),
		billing.WithLogger(log),
	}
	if cfg.appstore.VerifySignatures {
		jws, err := appstore.LoadJWSVerifier(cfg.appstore.RootCertPath)
		if err != nil {
			return err
		}
		billingOpts = append(billingOpts, billing.WithSignatureVerifier(jws))
	}

	coachSvc := coach.NewService(ledger, subs, coach.NewOpenAIProvider(cfg.coach), postgres.NewCoaching(pool),
		coach.WithTransactor(func(ctx context.Context, fn func(context.Context) error) error {
			return pg.WithTx(ctx, pool, fn)
		}),
		coach.WithPersona(cfg.coach.Persona),
		coach.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.Recoverer, m.Middleware)

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, cfg.app.ReadinessTimeout, checks...))
	r.Handle("/metrics", m.Handler())

	r.Mount("/billing", billing.New(verifier, subs, reconciler, billingOpts...).Handle())
	r.Mount("/coach", coaching.New(coachSvc, policy, auth,
		coaching.WithAnonymousLimiter(limiter),
		coaching.WithLogger(log),
	).Handle())

	log.InfoContext(ctx, "starting coachgate",
		slog.String("addr", cfg.http.Addr),
		slog.String("quota_store", cfg.app.QuotaStore),
		slog.String("quota_time_zone", loc.String()),
	)
	return httpserver.New(cfg.http, log).Run(ctx, r)
}

// quotaStore builds the configured counter backend, its readiness check
// when it has its own connection, and its cleanup.
func quotaStore(ctx context.Context, cfg settings, pool *pgxpool.Pool, log *slog.Logger) (quota.Store, *httpserver.Check, func(), error) {
	switch cfg.app.QuotaStore {
	case quotaRedis:
		client, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return nil, nil, nil, err
		}
		check := &httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)}
		return quota.NewRedisStore(client, cfg.redis.KeyPrefix), check, func() { _ = client.Close() }, nil

	case quotaPostgres:
		store := postgres.NewCounters(pool)
		pruneCtx, cancel := context.WithCancel(ctx)
		go prune(pruneCtx, store, cfg.app.QuotaPruneEvery, log)
		return store, nil, cancel, nil

	case quotaMemory:
		log.Warn("quota counters are kept in memory and reset on restart")
		store := quota.NewMemoryStore(quota.WithCleanupInterval(10 * time.Minute))
		return store, nil, store.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown quota store %q", cfg.app.QuotaStore)
}

// prune drops expired quota counters until ctx is done.
func prune(ctx context.Context, store *postgres.Counters, every time.Duration, log *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx)
			if err != nil {
				log.ErrorContext(ctx, "failed to prune quota counters", logger.Error(err))
				continue
			}
			log.DebugContext(ctx, "pruned quota counters", slog.Int64("deleted", n))
		}
	}
}
