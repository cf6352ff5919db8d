package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"genqueue/internal/infra"
	"genqueue/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("worker: REDIS_URL is required; the in-memory queue is only visible inside the api process")
	}
	if cfg.ExchangeBackend != infra.BackendRedis {
		logger.Warn().Msg("worker: exchange backend is memory; inputs staged by the api stay served by the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}
	defer p.Close()

	worker := p.NewWorker()
	reaper := p.NewReaper()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker: reaper stopped")
		}
	}()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}
	wg.Wait()
	logger.Info().Msg("worker: stopped")
}
