package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cuebook/internal/api"
	"cuebook/internal/config"
	"cuebook/internal/database"
	"cuebook/internal/domain"
	"cuebook/internal/events"
	"cuebook/internal/logging"
	"cuebook/internal/metrics"
	"cuebook/internal/repository"
	"cuebook/internal/service"
	"cuebook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var store domain.BookingStore = repository.NewMemoryBookingStore()
	if redisClient != nil {
		store = repository.NewFailoverBookingStore(repository.NewRedisBookingStore(redisClient), store, logger)
	}

	eventBus := events.NewEventBus()

	bookingService, err := service.NewBookingService(db, eventBus, store, cfg.Booking, logger)
	if err != nil {
		return fmt.Errorf("create booking service: %w", err)
	}

	var wg sync.WaitGroup
	publisher := startNotifications(ctx, &wg, cfg, db, eventBus, redisClient, logger)
	if publisher != nil {
		defer publisher.Close()
	}

	backup := database.NewBackupService(db, cfg.Backup, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		backup.Start(ctx)
	}()

	checks := []api.ReadinessCheck{{Name: "database", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, api.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
		})
	}
	httpServer := api.NewHTTPServer(&cfg.API, bookingService, logger, checks...)

	startMetrics(ctx, cfg, logger)

	err = serve(ctx, httpServer, cfg, logger)
	stop()
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, baseLogger, closer, nil
}

// initDatabase opens the store and syncs the configured catalog and promos into it.
func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncCatalog(ctx, cfg.TableTypes, cfg.Tables); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync catalog: %w", err)
	}

	promos, err := cfg.PromoModels()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, p := range promos {
		if err := db.UpsertPromo(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("upsert promo %s: %w", p.Code, err)
		}
	}

	logger.Info().Int("tables", len(cfg.Tables)).Int("promos", len(promos)).Msg("Catalog synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

type closablePublisher interface {
	worker.Publisher
	Close() error
}

type nopCloser struct {
	worker.Publisher
}

func (nopCloser) Close() error { return nil }

func startNotifications(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	db *database.DB,
	bus *events.EventBus,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) closablePublisher {
	if !cfg.Notifications.Enabled {
		logger.Info().Msg("Notifications are disabled")
		return nil
	}

	var publisher closablePublisher = nopCloser{worker.NewLogPublisher(logger)}
	if cfg.Notifications.AMQPURL != "" {
		publisher = worker.NewAMQPPublisher(cfg.Notifications.AMQPURL, cfg.Notifications.Exchange, logger)
	}

	retry := worker.RetryPolicyFromConfig(cfg.Notifications)
	w := worker.NewNotificationWorker(db, publisher, redisClient, retry, cfg.Notifications.QueueSize, logger).
		WithPollInterval(config.ParseDuration(cfg.Notifications.PollInterval, 5*time.Second))
	w.Subscribe(bus)

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()
	return publisher
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
