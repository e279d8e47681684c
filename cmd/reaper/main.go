package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"async-chat-broker/internal/archive"
	"async-chat-broker/internal/config"
	"async-chat-broker/internal/jobs"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(config.Defaults().Log, false).Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Dev())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if cfg.JobStore != "redis" {
		logger.Warn().Str("job_store", cfg.JobStore).Msg("standalone reaper only sweeps the redis job store")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
	}
	st := jobs.NewRedisStore(client, 2*cfg.JobRetention, logger)

	var archiver jobs.Archiver
	arch, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init archive")
	}
	if arch != nil {
		archiver = arch
	}
	r := jobs.NewReaper(st, cfg.ReaperInterval, cfg.JobRetention, archiver, logger)

	if *once {
		n, err := r.RunOnce(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("sweep")
		}
		logger.Info().Int("evicted", n).Msg("sweep done")
		return
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("reaper stopped")
	}
}
