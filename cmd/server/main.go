// Package main runs the partner relationship HTTP service.
//
// @title          Partner Relationship API
// @version        1.0
// @description    Mirrored supplier and customer relationships between companies.
// @BasePath       /api/v1
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	partnerapp "github.com/supplychain/backend/internal/application/partner"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"github.com/supplychain/backend/internal/infrastructure/auth"
	"github.com/supplychain/backend/internal/infrastructure/cache"
	"github.com/supplychain/backend/internal/infrastructure/config"
	"github.com/supplychain/backend/internal/infrastructure/event"
	"github.com/supplychain/backend/internal/infrastructure/logger"
	"github.com/supplychain/backend/internal/infrastructure/migration"
	"github.com/supplychain/backend/internal/infrastructure/persistence"
	"github.com/supplychain/backend/internal/infrastructure/scheduler"
	"github.com/supplychain/backend/internal/infrastructure/telemetry"
	"github.com/supplychain/backend/internal/interfaces/http/handler"
	"github.com/supplychain/backend/internal/interfaces/http/middleware"
	"github.com/supplychain/backend/internal/interfaces/http/router"
	"github.com/supplychain/backend/migrations"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search ./config.toml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()

	// Telemetry
	providers, err := telemetry.Setup(ctx, telemetry.Settings{
		Enabled:         cfg.Telemetry.Enabled,
		Endpoint:        cfg.Telemetry.CollectorEndpoint,
		Insecure:        cfg.Telemetry.Insecure,
		ServiceName:     cfg.Telemetry.ServiceName,
		SamplingRatio:   cfg.Telemetry.SamplingRatio,
		MetricsInterval: cfg.Telemetry.MetricsInterval,
		ExportLogs:      cfg.Log.Export,
		LogLevel:        logger.ParseLevel(cfg.Log.Level),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = providers.Bridge(log)

	log.Info("Starting partner service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("telemetry", providers.TracingEnabled()),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := runMigrations(db, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Company directory, optionally behind Redis
	var directory partner.CompanyDirectory = persistence.NewGormCompanyDirectory(db.DB, cfg.Directory.Table)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("Redis unavailable, resolving company names without cache", zap.Error(err))
		} else {
			directory = cache.NewCompanyNameCache(redisClient, directory,
				cache.WithNameTTL(cfg.Directory.CacheTTL),
				cache.WithNegativeTTL(cfg.Directory.NegativeTTL),
				cache.WithNameCacheLogger(log),
			)
			log.Info("Company name cache enabled", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// Application services
	meter := providers.Meter("partner-service")
	relMetrics, err := telemetry.NewRelationshipMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register relationship metrics", zap.Error(err))
	}

	eventBus := event.NewInMemoryEventBus(log)
	repo := persistence.NewGormRelationshipRepository(db.DB)

	serviceOpts := []partnerapp.RelationshipServiceOption{
		partnerapp.WithEventPublisher(eventBus),
		partnerapp.WithMetrics(relMetrics),
		partnerapp.WithLogger(log),
		partnerapp.WithReversePairCheck(cfg.Partner.RejectReversePair),
	}
	if cfg.Partner.AtomicPairWrites {
		serviceOpts = append(serviceOpts, partnerapp.WithPairTransactor(persistence.NewGormPairTransactor(db.DB)))
	}
	relationshipService := partnerapp.NewRelationshipService(repo, directory, serviceOpts...)

	var (
		reconcileScheduler *scheduler.ReconcileScheduler
		reconcileHandler   *handler.ReconcileHandler
	)
	if cfg.Reconcile.Enabled {
		policy, err := partnerapp.ParseOrphanPolicy(cfg.Reconcile.OrphanPolicy)
		if err != nil {
			log.Fatal("Invalid reconcile configuration", zap.Error(err))
		}
		reconciler := partnerapp.NewReconciliationService(repo, directory,
			partnerapp.WithOrphanPolicy(policy),
			partnerapp.WithSweepLimit(cfg.Reconcile.SweepLimit),
			partnerapp.WithReconcileMetrics(relMetrics),
			partnerapp.WithReconcileLogger(log),
		)
		reconcileScheduler = scheduler.NewReconcileScheduler(scheduler.Config{
			Workers:       cfg.Reconcile.Workers,
			QueueSize:     cfg.Reconcile.QueueSize,
			JobTimeout:    cfg.Reconcile.JobTimeout,
			MaxRetries:    cfg.Reconcile.MaxRetries,
			RetryDelay:    cfg.Reconcile.RetryDelay,
			SweepInterval: cfg.Reconcile.SweepInterval,
		}, reconciler, reconciler, log)

		var claims shared.IdempotencyStore
		if redisClient != nil {
			claims = cache.NewRedisIdempotencyStore(redisClient, "")
		} else {
			claims = cache.NewInMemoryIdempotencyStore()
		}
		defer func() {
			_ = claims.Close()
		}()

		inconsistencies := partnerapp.NewMirrorInconsistencyHandler(reconcileScheduler, log,
			partnerapp.WithRepairDedup(claims, cfg.Reconcile.DedupWindow))
		eventBus.Subscribe(inconsistencies, inconsistencies.EventTypes()...)

		if err := reconcileScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start reconcile scheduler", zap.Error(err))
		}
		reconcileHandler = handler.NewReconcileHandler(reconciler)
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register HTTP metrics", zap.Error(err))
	}

	// Order matters: the request ID feeds the logger, and the span must be
	// open before anything that annotates it.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithQuietPaths("/health", "/ready")))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     providers.TracingEnabled(),
	}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFromHTTP(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(httpMetrics)

	healthOpts := []handler.HealthOption{}
	if redisClient != nil {
		healthOpts = append(healthOpts, handler.WithRedisCheck(handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})))
	}
	if reconcileScheduler != nil {
		healthOpts = append(healthOpts, handler.WithSchedulerStats(reconcileScheduler))
	}
	router.RegisterHealthRoutes(engine, handler.NewHealthHandler(db, log, healthOpts...))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	if cfg.JWT.Enabled {
		jwtConfig := middleware.DefaultJWTConfig(auth.NewJWTService(cfg.JWT))
		jwtConfig.Logger = log
		r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	} else {
		log.Warn("JWT authentication disabled, caller addresses are not checked")
	}
	r.Use(middleware.TracingAttributeInjector(), middleware.SpanErrorMarker())
	if cfg.HTTP.WriteRateLimit > 0 {
		writeLimiter := middleware.NewRateLimiter(cfg.HTTP.WriteRateLimit, cfg.HTTP.WriteRateWindow)
		defer writeLimiter.Stop()
		r.Use(middleware.WriteRateLimit(writeLimiter))
	}

	r.Register(router.PartnerRoutes(handler.NewRelationshipHandler(relationshipService), reconcileHandler))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.Bool("atomic_pair_writes", relationshipService.IsAtomic()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if reconcileScheduler != nil {
		if err := reconcileScheduler.Stop(shutdownCtx); err != nil {
			log.Warn("Reconcile scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}

	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func runMigrations(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	// Closing the migrator would close sqlDB, which the service still uses.
	return m.Up()
}
