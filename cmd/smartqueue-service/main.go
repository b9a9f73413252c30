package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/smartqueue-service/internal/config"
	"qms/smartqueue-service/internal/httpapi"
	"qms/smartqueue-service/internal/metrics"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/queue"
	"qms/smartqueue-service/internal/store"
	"qms/smartqueue-service/internal/store/memory"
	"qms/smartqueue-service/internal/store/postgres"
	"qms/smartqueue-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "smartqueue-service"

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogJSON)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	shutdownTracing := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	docs, closeStore := openStore(cfg, logger)
	defer closeStore()

	layouts, err := config.LoadCounters(cfg.CountersFile)
	if err != nil {
		logger.Fatal("counters file", zap.Error(err))
	}

	collector := metrics.NewCollector()
	hub := notify.NewHub(logger)
	audit := hub.Subscribe("", 256)
	go logEvents(audit, logger)
	defer hub.Unsubscribe(audit)
	notifiers := notify.Multi{hub}
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer client.Close()
		publisher := notify.NewRedisPublisher(client, logger)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	messenger, err := notify.NewMessenger(notify.MessengerConfig{
		SMSProvider:      cfg.SMSProvider,
		WhatsAppProvider: cfg.WhatsAppProvider,
		LogSize:          cfg.NotificationLogSize,
		Recorder:         collector,
	}, logger)
	if err != nil {
		logger.Fatal("message providers", zap.Error(err))
	}

	seats := queue.NewSeatAllocator(cfg.SeatCapacity)
	estimator := queue.NewEstimator(docs, queue.EstimatorConfig{
		DefaultMinutes: cfg.DefaultServiceMinutes,
		Window:         cfg.HistoryWindow,
		PeakStartHour:  cfg.PeakStartHour,
		PeakEndHour:    cfg.PeakEndHour,
		PeakMultiplier: cfg.PeakMultiplier,
	}, logger)
	service := queue.NewService(queue.ServiceConfig{
		Store:     docs,
		Counters:  queue.NewCounterAllocator(docs, layouts),
		Seats:     seats,
		Estimator: estimator,
		Density:   queue.NewDensityClassifier(docs, logger),
		Resolver:  queue.NewResolver(docs, logger),
		Notifier:  notifiers,
		Messenger: messenger,
		Recorder:  collector,
		Logger:    logger,
	})
	sweeper := queue.NewSweeper(docs, seats, notifiers, queue.SweeperConfig{
		Interval: cfg.NoShowInterval,
		Timeout:  cfg.NoShowTimeout,
		Recorder: collector,
	}, logger)

	handler := httpapi.NewHandler(service, httpapi.Options{
		Messages: messenger,
		Metrics:  collector.Handler(),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})
	logging := httpapi.LoggingMiddleware(logger, collector)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(logging(limiter.Middleware(handler.Routes())), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopSweeper()
	<-sweepDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// logEvents drains an all-locations subscription until it is closed.
func logEvents(sub *notify.Subscription, logger *zap.Logger) {
	for event := range sub.C {
		logger.Debug("queue event",
			zap.String("action", event.Action),
			zap.String("location_id", event.LocationID),
			zap.String("entry_id", event.EntryID),
			zap.String("status", string(event.Status)),
		)
	}
}

func newLogger(jsonOutput bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if jsonOutput {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", serviceName))
}

func openStore(cfg config.Config, logger *zap.Logger) (store.DocumentStore, func()) {
	if cfg.StoreDriver != config.DriverPostgres {
		return memory.NewStore(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	st := postgres.NewStore(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		logger.Fatal("db migrate", zap.Error(err))
	}
	return st, pool.Close
}

func newRedisClient(url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, publishing will be retried per event", zap.Error(err))
	}
	return client, nil
}
