package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/cache"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/config"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/database"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/handler"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/middleware"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/repository"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/router"
	"github.com/DepartmentOfSoftwareEngineeringFEFU/course-analytics/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	checks := []handler.DependencyCheck{{Name: "database", Check: pingDatabase(db)}}

	var store cache.Store
	if cfg.RedisURL != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := database.ConnectRedis(connectCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		store = cache.NewRedisStore(redisClient, cfg.MetricsCacheTTL)
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: pingRedis(redisClient)})
	} else {
		logger.Warn().Msg("redis url not set, metrics caching disabled")
	}

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()

		publisher = natsConn
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	metricsRepo := repository.NewMetricsRepository(db)
	metricsService := service.NewMetricsService(metricsRepo, store, publisher, service.MetricsServiceConfig{
		Workers:           cfg.MetricsWorkers,
		CompletionTimeCap: cfg.CompletionTimeCap,
		EventSubject:      cfg.NATSSubject,
	}, logger)

	metricsHandler := handler.NewMetricsHandler(
		metricsService,
		validate,
		middleware.RateLimit("recompute", cfg.RecomputeRateLimit, cfg.RecomputeRateWindow),
		logger,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, ObservedPrefix: "/api/metrics"})
	router.Register(app, cfg, router.Dependencies{
		MetricsHandler: metricsHandler,
		HealthChecks:   checks,
	})

	if cfg.PrecomputeOnStart {
		go precompute(metricsService, logger)
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// precompute warms the cache with the global metrics so the first dashboard load is fast.
func precompute(svc service.MetricsService, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := svc.Recompute(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("startup precompute failed")
		return
	}
	logger.Info().
		Int("steps", result.Steps).
		Int("courses", result.Courses).
		Int("failures", len(result.Errors)).
		Msg("startup precompute finished")
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func pingRedis(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
