package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/catalog"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/config"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/event"
	handler "github.com/lizTheDeveloper/BulkFoodHub/internal/handler/http"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/orders"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/pricing"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/repository/postgres"
	redisrepo "github.com/lizTheDeveloper/BulkFoodHub/internal/repository/redis"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/service"
	"github.com/lizTheDeveloper/BulkFoodHub/migrations"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/database"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/health"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httpclient"
	pkgkafka "github.com/lizTheDeveloper/BulkFoodHub/pkg/kafka"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/tracing"
)

// App wires together all dependencies and runs the commerce service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "commerce",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Redis holds live carts.
	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// PostgreSQL holds checkout sessions.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "commerce")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		rdb.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	cartRepo := redisrepo.NewCartRepository(rdb, time.Duration(cfg.CartTTL)*time.Hour)
	checkoutRepo := postgres.NewCheckoutRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	// HTTP clients for downstream services. Calculation and catalog calls
	// are idempotent and run behind the circuit breaker with retries; order
	// creation gets its own non-retrying client so a timed-out submit can
	// never be sent twice.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.HTTPClientTimeout) * time.Second,
		MaxRetries:      cfg.HTTPClientRetries,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	})
	createClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.HTTPClientTimeout) * time.Second,
		MaxRetries:      0,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	})

	cbCfg := httpclient.CircuitBreakerConfig{
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}

	// Each downstream gets its own breaker so a catalog outage cannot
	// trip order calculation, and each fallback names the service that
	// is actually down.
	orderCBCfg := cbCfg
	orderCBCfg.Name = "commerce-order-service"
	orderCBClient := httpclient.NewCircuitBreakerClient(baseClient, orderCBCfg, logger).
		WithFallback(orders.CircuitOpenFallback)

	catalogCBCfg := cbCfg
	catalogCBCfg.Name = "commerce-catalog-service"
	catalogCBClient := httpclient.NewCircuitBreakerClient(baseClient, catalogCBCfg, logger).
		WithFallback(catalog.CircuitOpenFallback)

	for _, name := range []string{orderCBCfg.Name, catalogCBCfg.Name} {
		logger.Info("circuit breaker initialized",
			slog.String("name", name),
			slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
			slog.Int("timeout_seconds", cfg.CBTimeout),
			slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
		)
	}

	catalogClient := catalog.NewClient(catalogCBClient, cfg.CatalogServiceURL, logger)
	ordersClient := orders.NewClient(orderCBClient, createClient, cfg.OrderServiceURL, logger)

	policy, err := cfg.PricingPolicy()
	if err != nil {
		pool.Close()
		rdb.Close()
		return nil, fmt.Errorf("pricing policy: %w", err)
	}
	quoter := pricing.NewQuoter(ordersClient, pricing.NewEngine(policy), logger)

	checkoutService := service.NewCheckoutService(
		checkoutRepo,
		cartRepo,
		quoter,
		ordersClient,
		eventProducer,
		logger,
		time.Duration(cfg.CheckoutTTL)*time.Minute,
	)
	cartService := service.NewCartService(
		cartRepo,
		catalogClient,
		checkoutService,
		eventProducer,
		logger,
		time.Duration(cfg.CartTTL)*time.Hour,
	)

	// Health checks. Kafka is best-effort: events are fire-and-forget, so
	// a broker outage degrades rather than fails readiness.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(cartService, checkoutService, catalogClient, healthHandler, logger, cfg.PprofAllowedCIDRs)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool and Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close storage clients.
	a.pool.Close()
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
