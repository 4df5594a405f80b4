package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/transitfare/fare-go/internal/config"
	"github.com/transitfare/fare-go/internal/jobs"
	"github.com/transitfare/fare-go/internal/postgres"
	"github.com/transitfare/fare-go/internal/queue"
	redisx "github.com/transitfare/fare-go/internal/redis"
	postgresrepo "github.com/transitfare/fare-go/internal/repository/postgres"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
	"github.com/transitfare/fare-go/internal/service"
	"github.com/transitfare/fare-go/internal/service/booking"
	httpgin "github.com/transitfare/fare-go/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *jobs.Scheduler
	publisher  *queue.Publisher
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "farego:v1:rl", cfg.Engine.RateLimit, cfg.Engine.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Engine.IdempotencyTTL)

	// Booking events go to redis pub/sub always and to RabbitMQ when a broker
	// is configured.
	notifiers := booking.Notifiers{redisx.NewBookingEventsPubSub(rdb)}

	var publisher *queue.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = queue.NewPublisher(cfg.AMQP.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize amqp publisher: %w", err)
		}
		notifiers = append(notifiers, publisher)
	}

	// Initialize services
	services, err := service.NewServices(logger, store, cache, limiter, notifiers, service.Config{
		ClaimTimeout: cfg.Engine.ClaimTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Warm the policy table and promo registry; an empty catalog is fine on
	// first boot.
	warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := services.Booking.RefreshCatalog(warmCtx); err != nil {
		logger.Warn("initial catalog load failed", "error", err)
	}

	scheduler, err := jobs.NewScheduler(logger, services.Booking, cfg.Engine.RefreshSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		scheduler: scheduler,
		publisher: publisher,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	a.scheduler.Start()

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")

		a.scheduler.Stop()
		if a.publisher != nil {
			_ = a.publisher.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
