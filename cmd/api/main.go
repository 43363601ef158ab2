package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/internal/http/chi"
	"github.com/marcelsud/webhook-dispatch/metrics"
	"github.com/marcelsud/webhook-dispatch/seed"
	"github.com/marcelsud/webhook-dispatch/storage"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
	"github.com/marcelsud/webhook-dispatch/webhook/executor"
	"github.com/marcelsud/webhook-dispatch/webhook/queue"
	"github.com/rs/zerolog"
)

const TIMEOUT = 30 * time.Second

/* main wires config, store, queue, runner and the HTTP API
 * Imports only go downward: the binary imports the business packages,
 * which import the storage layer
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return
	}
	defer store.Close(context.Background())

	keyFunc, err := queue.NewKeyFunc(cfg.BreakerKey)
	if err != nil {
		logger.Error().Err(err).Msg("invalid breaker key")
		return
	}
	br := breaker.New(breaker.Config{
		Threshold:   cfg.BreakerThreshold,
		Window:      cfg.BreakerWindow,
		Cooldown:    cfg.BreakerCooldown,
		MaxCooldown: cfg.BreakerMaxCooldown,
	})
	q := queue.New(store, executor.New(cfg.DeliveryTimeout), br, queue.Config{
		BaseBackoff:       cfg.RetryBaseBackoff,
		MaxBackoff:        cfg.RetryMaxBackoff,
		Jitter:            cfg.RetryJitter,
		DefaultMaxRetries: cfg.DefaultMaxRetries,
		Concurrency:       cfg.QueueConcurrency,
		BatchSize:         cfg.QueueBatchSize,
		ClaimLease:        cfg.QueueClaimLease,
		BreakerKey:        keyFunc,
	}, logger)

	svc := webhook.NewService(store, q)
	svc.IdempotencyTTL = cfg.IdempotencyTTL

	if cfg.SeedFile != "" {
		loader := seed.NewLoader()
		if err := loader.Load(cfg.SeedFile); err != nil {
			logger.Error().Err(err).Str("seed_file", cfg.SeedFile).Msg("failed to load seed file")
			return
		}
		created, err := loader.Apply(ctx, svc)
		if err != nil {
			logger.Error().Err(err).Msg("failed to apply seed file")
			return
		}
		logger.Info().Int("created", created).Int("declared", len(loader.List())).Msg("seed file applied")
	}

	exporter, err := metrics.NewOTelExporter(metrics.NewStoreCollector(store, br))
	if err != nil {
		logger.Error().Err(err).Msg("failed to create metrics exporter")
		return
	}
	defer exporter.Shutdown(context.Background())

	runner := queue.NewRunner(q, cfg.QueuePollInterval, logger)
	runner.Start(ctx)
	defer runner.Stop()

	r := chi.Handlers(ctx, chi.Deps{
		ServiceName:      cfg.ServiceName,
		Webhooks:         svc,
		APIKeys:          apikey.NewService(store),
		Breaker:          br,
		Metrics:          exporter.ServeHTTP(),
		RequireAPIKey:    cfg.RequireAPIKey,
		TriggerRateLimit: cfg.TriggerRateLimit,
	})
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	logger.Info().
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Str("worker_id", runner.WorkerID()).
		Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server failed")
		return
	}
	err = <-errShutdown
	if err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
		return
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing the server to close: %w", err)
	default:
		errShutdown <- fmt.Errorf("shutting down server: %w", err)
	}
}
