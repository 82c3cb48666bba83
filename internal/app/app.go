package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/civitas/user-service/internal/auth"
	"github.com/civitas/user-service/internal/config"
	"github.com/civitas/user-service/internal/event"
	handler "github.com/civitas/user-service/internal/handler/http"
	"github.com/civitas/user-service/internal/repository"
	"github.com/civitas/user-service/internal/repository/cache"
	"github.com/civitas/user-service/internal/repository/postgres"
	"github.com/civitas/user-service/internal/service"
	"github.com/civitas/user-service/migrations"
	"github.com/civitas/user-service/pkg/database"
	"github.com/civitas/user-service/pkg/health"
	pkgkafka "github.com/civitas/user-service/pkg/kafka"
	"github.com/civitas/user-service/pkg/middleware"
	"github.com/civitas/user-service/pkg/tracing"
)

// accessTokenTTL applies to tokens minted by this process; validation reads
// the exp claim of the presented token.
const accessTokenTTL = 15 * time.Minute

// Startup hooks, replaced in tests.
var (
	initTracer      = tracing.Init
	connectPostgres = database.NewPostgresPool
	runMigrations   = database.RunMigrations
)

// App wires together all dependencies and runs the user service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := initTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	// Flushes the exporter when startup aborts after tracing is up.
	abort := func(err error) (*App, error) {
		if shutdownErr := tracerShutdown(context.Background()); shutdownErr != nil {
			logger.Error("tracer shutdown error", slog.String("error", shutdownErr.Error()))
		}
		return nil, err
	}

	registry := newRegistry()

	// Initialize PostgreSQL connection pool.
	pool, err := connectPostgres(ctx, cfg.Postgres(), logger)
	if err != nil {
		return abort(fmt.Errorf("connect to postgres: %w", err))
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	registry.MustRegister(database.NewPoolStatsCollector(pool, cfg.ServiceName))

	// Run database migrations.
	if err := runMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return abort(fmt.Errorf("run migrations: %w", err))
	}
	logger.Info("database migrations completed")

	if cfg.SlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.SlowQuery, logger)
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(
		pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers),
		logger,
		pkgkafka.NewProducerMetrics(registry),
	)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	var userRepo repository.UserRepository = postgres.NewUserRepository(pool)

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, user cache disabled", slog.String("error", err.Error()))
	} else {
		userRepo = cache.NewUserRepository(userRepo, redisClient, cfg.CacheTTL, logger, cache.NewMetrics(registry))
		logger.Info("user cache enabled",
			slog.String("addr", cfg.Redis().Addr()),
			slog.Duration("ttl", cfg.CacheTTL),
		)
	}

	eventProducer := event.NewProducer(producer, logger)
	userService := service.NewUserService(userRepo, eventProducer, logger, service.NewMetrics(registry))

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	routerCfg := handler.RouterConfig{
		UserService:    userService,
		Health:         healthHandler,
		Logger:         logger,
		HTTPMetrics:    middleware.NewHTTPMetrics(registry, cfg.ServiceName),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxAge:         300,
		},
	}
	if cfg.AuthEnabled() {
		routerCfg.TokenValidator = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, accessTokenTTL).TokenValidator()
		logger.Info("bearer auth enabled on write routes", slog.String("issuer", cfg.JWTIssuer))
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(routerCfg),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newRegistry returns a registry carrying the Go runtime and process
// collectors; service collectors are added by the caller.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
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

	// 4. Close Redis client.
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
