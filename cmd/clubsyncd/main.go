// Command clubsyncd serves the subscription reconciliation admin API and the
// Stripe webhook intake.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpmw "github.com/mihaimyh/clubsync/middleware/http"
	"github.com/mihaimyh/clubsync/pkg/api"
	"github.com/mihaimyh/clubsync/pkg/billing"
	billingprom "github.com/mihaimyh/clubsync/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/clubsync/pkg/billing/stripe"
	"github.com/mihaimyh/clubsync/pkg/clubsync"
	zerologadapter "github.com/mihaimyh/clubsync/pkg/clubsync/logger/zerolog"
	prommetrics "github.com/mihaimyh/clubsync/pkg/clubsync/metrics/prometheus"
	"github.com/mihaimyh/clubsync/storage/firestore"
	"github.com/mihaimyh/clubsync/storage/memory"
	"github.com/mihaimyh/clubsync/storage/postgres"
	"github.com/mihaimyh/clubsync/storage/redis"
	"github.com/mihaimyh/clubsync/storage/tiered"
)

const metricsNamespace = "clubsync"

// store is the local mirror plus the tenant seeding the memory backend uses
type store interface {
	clubsync.Storage
	SaveTenant(ctx context.Context, t *clubsync.Tenant) error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	zlog := newZerolog(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Error().Err(err).Msg("clubsyncd exited with error")
		os.Exit(1)
	}
}

func newZerolog(cfg *Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var zlog zerolog.Logger
	if cfg.IsDevelopment() {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		zlog = zerolog.New(output)
	} else {
		zlog = zerolog.New(os.Stdout)
	}
	return zlog.Level(level).With().Timestamp().Str("service", "clubsyncd").Logger()
}

func run(ctx context.Context, cfg *Config, zlog zerolog.Logger) error {
	logger := zerologadapter.NewLogger(zlog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coreMetrics := prommetrics.NewMetrics(reg, metricsNamespace)
	billingMetrics := billingprom.NewMetrics(reg, metricsNamespace)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, closeCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	billingCfg := billing.DefaultConfig()
	billingCfg.APIKey = cfg.StripeAPIKey
	billingCfg.WebhookSecret = cfg.StripeWebhookSecret
	billingCfg.BackendURL = cfg.StripeBackendURL
	billingCfg.Metrics = billingMetrics
	billingCfg.Logger = logger
	billingCfg.WebhookCallback = func(_ context.Context, change billing.SubscriptionChange) error {
		cache.InvalidateMetrics(change.TenantID)
		return nil
	}

	stripeClient, err := stripe.NewClient(billingCfg)
	if err != nil {
		return fmt.Errorf("failed to create stripe client: %w", err)
	}

	reconciler, err := clubsync.NewReconciler(st, stripeClient, clubsync.Config{
		Metrics: coreMetrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Reconciler = reconciler
	apiCfg.Cache = cache
	apiCfg.MetricsTTL = cfg.MetricsTTL
	apiCfg.Metrics = coreMetrics
	apiCfg.Logger = logger
	handler, err := api.NewHandler(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create admin handler: %w", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID, chimw.RealIP)

	if cfg.StripeWebhookSecret != "" {
		webhook, err := stripe.NewWebhookHandler(billingCfg, reconciler, st)
		if err != nil {
			return fmt.Errorf("failed to create webhook handler: %w", err)
		}
		router.Method(http.MethodPost, "/webhooks/stripe", webhook.Handler())
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook intake disabled")
	}

	admin := handler.Routes()
	if cfg.TenantHeader != "" {
		admin = httpmw.Middleware(httpmw.Config{GetTenant: httpmw.FromHeader(cfg.TenantHeader)})(admin)
	}
	router.Mount("/", admin)

	adminServer := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(adminServer, logger, "admin") })
	g.Go(func() error { return serve(metricsServer, logger, "metrics") })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(adminServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func serve(srv *http.Server, logger clubsync.Logger, name string) error {
	logger.Info("listening", clubsync.Field{Key: "server", Value: name}, clubsync.Field{Key: "addr", Value: srv.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *Config, logger clubsync.Logger) (store, func(), error) {
	switch cfg.StorageBackend {
	case "postgres":
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnectionString = cfg.PostgresDSN
		pgCfg.AutoMigrate = cfg.PostgresMigrate
		pgCfg.Logger = logger
		st, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return st, st.Close, nil

	case "firestore":
		client, err := gcfirestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		p := cfg.FirestorePrefix
		st, err := firestore.New(client, firestore.Config{
			TenantsCollection:       p + "tenants",
			ConsumersCollection:     p + "consumers",
			PlansCollection:         p + "plans",
			SubscriptionsCollection: p + "plan_subscriptions",
			WebhookEventsCollection: p + "webhook_events",
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return st, func() { _ = client.Close() }, nil

	default:
		st := memory.New()
		if cfg.MemorySeedTenant != "" {
			if err := st.SaveTenant(ctx, &clubsync.Tenant{
				ID:               cfg.MemorySeedTenant,
				Slug:             cfg.MemorySeedTenant,
				Name:             cfg.MemorySeedTenant,
				BillingAccountID: cfg.MemorySeedAccount,
			}); err != nil {
				return nil, nil, fmt.Errorf("failed to seed tenant: %w", err)
			}
		}
		logger.Warn("using in-memory storage, data is lost on restart")
		return st, func() {}, nil
	}
}

func openCache(cfg *Config, logger clubsync.Logger) (clubsync.Cache, func(), error) {
	newRedis := func() (*redis.Cache, *goredis.Client, error) {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rcfg := redis.DefaultConfig()
		rcfg.KeyPrefix = cfg.RedisKeyPrefix
		rcfg.Logger = logger
		c, err := redis.New(client, rcfg)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return c, client, nil
	}

	switch cfg.CacheBackend {
	case "none":
		return clubsync.NewNoopCache(), func() {}, nil

	case "redis":
		c, client, err := newRedis()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return c, func() { _ = client.Close() }, nil

	case "tiered":
		cold, client, err := newRedis()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		c, err := tiered.New(tiered.Config{
			Hot:             clubsync.NewLRUCache(cfg.CacheSize),
			Cold:            cold,
			AsyncColdWrites: true,
			OnDrop: func(tenantID string) {
				logger.Warn("tiered cache queue full, dropped redis write", clubsync.Field{Key: "tenant_id", Value: tenantID})
			},
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return c, func() {
			_ = c.Close()
			_ = client.Close()
		}, nil

	default:
		return clubsync.NewLRUCache(cfg.CacheSize), func() {}, nil
	}
}
