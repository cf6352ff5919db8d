package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"genqueue/internal/http/handlers"
	httpapi "genqueue/internal/http/httpapi"
	"genqueue/internal/infra"
	"genqueue/internal/pipeline"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer p.Close()

	if !cfg.WorkerEmbedded && cfg.RedisURL == "" {
		logger.Fatal().Msg("WORKER_EMBEDDED=false needs REDIS_URL so a separate worker can see the queue")
	}

	app := handlers.NewApp(handlers.Deps{
		Admitter:       p.NewAdmitter(),
		Reconciler:     p.Reconciler,
		Jobs:           p.Jobs,
		Workspaces:     p.Workspaces,
		Users:          p.Users,
		Exchange:       p.Exchange,
		CallbackSecret: cfg.CallbackSecret,
		Logger:         logger,
	})
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		StaticDir:       p.StaticDir(),
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	var background sync.WaitGroup
	if cfg.WorkerEmbedded {
		worker := p.NewWorker()
		reaper := p.NewReaper()
		background.Add(2)
		go func() {
			defer background.Done()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("embedded worker stopped")
			}
		}()
		go func() {
			defer background.Done()
			if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("reaper stopped")
			}
		}()
		logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("embedded workers started")
	}

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	background.Wait()
	logger.Info().Msg("server stopped")
}
