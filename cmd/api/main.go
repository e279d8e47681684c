package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	api "async-chat-broker/internal/api"
	"async-chat-broker/internal/archive"
	"async-chat-broker/internal/chatlog"
	"async-chat-broker/internal/config"
	"async-chat-broker/internal/dispatch"
	"async-chat-broker/internal/jobs"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/ratelimit"
	"async-chat-broker/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.Defaults().Log, false).Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Dev())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	var (
		jobStore jobs.Store
		limiter  ratelimit.Limiter
	)
	switch cfg.JobStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
		}
		// Records outlive the retention window so the reaper sees them first.
		jobStore = jobs.NewRedisStore(client, 2*cfg.JobRetention, logger)
		limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	default:
		jobStore = jobs.NewMemoryStore()
		limiter = ratelimit.NewLocal(cfg.RateLimitCapacity, cfg.RateLimitRefill)
	}

	var chats chatlog.Log = chatlog.NewMemory()
	if cfg.PostgresDSN != "" {
		st, err := store.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer st.Close()
		if err := st.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
		chats = st
	}

	lifecycle := jobs.NewLifecycle(jobStore,
		jobs.WithStrictCompletion(cfg.CompletionStrict),
		jobs.WithLogger(logging.Component(logger, "lifecycle")),
	)
	dispatcher := dispatch.New(dispatch.Config{
		WebhookURL:  cfg.EngineWebhookURL,
		Timeout:     cfg.EngineTimeout,
		PingTimeout: cfg.EnginePingTimeout,
		SyncTimeout: cfg.EngineSyncTimeout,
	}, lifecycle, logger)

	go runReaper(ctx, cfg, jobStore, logger)

	server := api.New(cfg, lifecycle, dispatcher, chats, limiter, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("port", cfg.HTTPPort).Str("job_store", cfg.JobStore).
		Str("engine", logging.Redact(cfg.EngineWebhookURL, cfg.Dev())).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	dispatcher.Wait()
	logger.Info().Msg("api stopped")
}

func runReaper(ctx context.Context, cfg config.Config, st jobs.Store, logger *zerolog.Logger) {
	arch, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		logger.Error().Err(err).Msg("archive disabled")
	}
	var archiver jobs.Archiver
	if arch != nil {
		archiver = arch
	}
	r := jobs.NewReaper(st, cfg.ReaperInterval, cfg.JobRetention, archiver, logger)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("reaper stopped")
	}
}
