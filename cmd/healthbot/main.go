package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/health-assistant/internal/api"
	"github.com/LeventeLantos/health-assistant/internal/broadcast"
	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/client"
	"github.com/LeventeLantos/health-assistant/internal/config"
	"github.com/LeventeLantos/health-assistant/internal/intake"
	"github.com/LeventeLantos/health-assistant/internal/intent"
	"github.com/LeventeLantos/health-assistant/internal/logging"
	"github.com/LeventeLantos/health-assistant/internal/metrics"
	"github.com/LeventeLantos/health-assistant/internal/pipeline"
	"github.com/LeventeLantos/health-assistant/internal/recipient"
	"github.com/LeventeLantos/health-assistant/internal/reply"
	"github.com/LeventeLantos/health-assistant/internal/repo"
	"github.com/LeventeLantos/health-assistant/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("healthbot exited", "err", err)
		os.Exit(1)
	}
}

// backend is what the Redis and in-memory caches both provide.
type backend interface {
	cache.DeliveryCache
	cache.Deduper
	cache.FailureLog
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	kv, closeCache, err := openCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	wa := client.NewWhatsAppClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Token, cfg.WhatsApp.SendTimeout)

	pipe := pipeline.New(store, wa, intent.NewRules(nil), reply.NewComposer(logger), pipeline.Config{
		ReplyRetries: cfg.Pipeline.ReplyRetries,
		StoreRetries: cfg.Pipeline.StoreRetries,
		MaxChars:     cfg.Pipeline.MaxChars,
		RetryBackoff: 500 * time.Millisecond,
		SendTimeout:  cfg.WhatsApp.SendTimeout,
	}, logger).WithDeduper(kv).WithFailureLog(kv)
	go drainFailures(ctx, pipe.Errors(), logger)

	queue := intake.NewQueue(pipe, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	queue.Start()

	engine := broadcast.NewEngine(recipient.NewSelector(store), wa, store, broadcast.Config{
		BatchSize:   cfg.Broadcast.BatchSize,
		BatchDelay:  cfg.Broadcast.BatchDelay,
		SendTimeout: cfg.WhatsApp.SendTimeout,
	}, logger).WithDeliveryCache(kv)

	sched, err := scheduler.New("idle-conversations", cfg.Scheduler.Interval,
		scheduler.IdleSweep(store, cfg.Scheduler.IdleAfter, nil, logger), logger)
	if err != nil {
		return err
	}
	sched.Start()

	h := api.NewHandler(api.Deps{
		Scheduler:   sched,
		Intake:      queue,
		Broadcasts:  engine,
		Failures:    kv,
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AdminKey:    cfg.Admin.APIKey,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("healthbot listening",
			"addr", cfg.Server.Address,
			"workers", cfg.Pipeline.Workers,
			"batch_size", cfg.Broadcast.BatchSize,
			"redis", cfg.Redis.Enabled,
			"postgres", cfg.Database.PostgresURL != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop intake first so no new work arrives, then let queued messages and
	// running broadcasts finish inside the same deadline.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	sched.Stop()
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Warn("intake did not drain", "err", err, "left", queue.Len())
	}
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Warn("broadcasts interrupted", "err", err)
	}

	logger.Info("healthbot stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repo.Store, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Warn("POSTGRES_URL not set, using in-memory store")
		return repo.NewMemoryStore(), func() {}, nil
	}

	db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func openCache(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (backend, func(), error) {
	if !cfg.Enabled {
		logger.Warn("REDIS_ADDR not set, using in-memory cache")
		return cache.NewMemoryCache(24 * time.Hour), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return cache.NewRedisCache(rdb, cfg.TTL), func() { _ = rdb.Close() }, nil
}

func drainFailures(ctx context.Context, failures <-chan pipeline.Failure, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-failures:
			logger.Error("pipeline failure",
				"external_id", f.ExternalID,
				"recipient", f.Recipient,
				"stage", f.Stage,
				"err", f.Err,
			)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inflight := metrics.HTTPInFlight()
		inflight.Inc()
		defer inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(r.Method, route, rec.status, start)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
