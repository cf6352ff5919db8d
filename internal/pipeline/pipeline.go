// Package pipeline assembles the stores, providers and orchestrator
// components from configuration. Both binaries build on it.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"genqueue/internal/adapter/repo"
	"genqueue/internal/domain"
	"genqueue/internal/exchange"
	"genqueue/internal/infra"
	"genqueue/internal/infra/credentials"
	"genqueue/internal/orchestrator"
	"genqueue/internal/providers"
	"genqueue/internal/providers/genai"
	"genqueue/internal/providers/kie"
	"genqueue/internal/providers/qwen"
	"genqueue/internal/queue"
	"genqueue/internal/storage"
)

// Pipeline is the assembled set of components.
type Pipeline struct {
	Config     *infra.Config
	Logger     infra.Logger
	Jobs       domain.JobRepository
	Workspaces domain.WorkspaceRepository
	Users      domain.UserRepository
	Queue      queue.Queue
	Notifier   queue.Notifier
	Exchange   exchange.Store
	Storage    storage.Store
	Registry   *providers.Registry
	Settler    *orchestrator.Settler
	Poller     *orchestrator.Poller
	Reconciler *orchestrator.Reconciler

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Build connects to the configured backends and wires the components.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Pipeline, error) {
	p := &Pipeline{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	var creds *credentials.Store
	switch cfg.JobStore {
	case infra.JobStorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		p.Jobs = repo.NewJobRepository(runner)
		p.Workspaces = repo.NewWorkspaceRepository(runner)
		p.Users = repo.NewUserRepository(runner)
		creds = credentials.NewStore(runner)
	default:
		p.Jobs = repo.NewMemoryJobRepository()
		p.Workspaces = repo.NewMemoryWorkspaceRepository().WithPersonalWorkspaces()
		logger.Warn().Msg("job store is in memory; jobs are lost on restart")
	}

	if cfg.RedisURL != "" {
		rc, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.redis = rc
		p.Queue = queue.NewRedisQueue(rc, cfg.QueuePrefix)
		p.Notifier = queue.NewRedisNotifier(rc, cfg.QueuePrefix)
	} else {
		p.Queue = queue.NewMemoryQueue()
		p.Notifier = queue.NewLocalNotifier()
		logger.Warn().Msg("REDIS_URL not set; queue is in memory and workers must be embedded")
	}

	switch cfg.ExchangeBackend {
	case infra.BackendRedis:
		p.Exchange = exchange.NewRedisStore(p.redis, cfg.QueuePrefix, cfg.ExchangeTTL)
	default:
		p.Exchange = exchange.NewMemoryStore(cfg.ExchangeTTL)
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}
	p.Storage = store

	registry, err := newRegistry(ctx, cfg, creds, logger)
	if err != nil {
		return nil, err
	}
	p.Registry = registry

	persister := orchestrator.NewPersister(p.Storage, providers.NewHTTPClient(60*time.Second), cfg.FetchMaxBytes)
	p.Settler = orchestrator.NewSettler(p.Jobs, persister, logger)
	p.Poller = orchestrator.NewPoller(orchestrator.PollPolicy{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
	}, logger)
	p.Reconciler = orchestrator.NewReconciler(p.Jobs, p.Registry, p.Settler, logger)

	ok = true
	return p, nil
}

// NewAdmitter returns the admission controller.
func (p *Pipeline) NewAdmitter() *orchestrator.Admitter {
	return orchestrator.NewAdmitter(orchestrator.AdmitterDeps{
		Jobs:          p.Jobs,
		Workspaces:    p.Workspaces,
		Queue:         p.Queue,
		Notifier:      p.Notifier,
		Exchange:      p.Exchange,
		Registry:      p.Registry,
		PublicBaseURL: p.Config.PublicBaseURL,
		Logger:        p.Logger,
	})
}

// NewWorker returns a queue worker sized by WORKER_CONCURRENCY.
func (p *Pipeline) NewWorker() *orchestrator.Worker {
	return orchestrator.NewWorker(orchestrator.WorkerDeps{
		Queue:        p.Queue,
		Notifier:     p.Notifier,
		Jobs:         p.Jobs,
		Registry:     p.Registry,
		Poller:       p.Poller,
		Settler:      p.Settler,
		Concurrency:  p.Config.WorkerConcurrency,
		IdleInterval: p.Config.WorkerIdleInterval,
		Logger:       p.Logger,
	})
}

// NewReaper returns the stale job sweeper.
func (p *Pipeline) NewReaper() *orchestrator.Reaper {
	return orchestrator.NewReaper(p.Jobs, p.Queue, p.Registry, p.Settler, orchestrator.ReaperOptions{
		Interval:    p.Config.SweepInterval,
		OrphanAfter: p.Config.OrphanAfter,
		StaleAfter:  p.Config.StaleAfter,
	}, p.Logger)
}

// StaticDir is the directory to serve under /static, or "" when results
// live elsewhere.
func (p *Pipeline) StaticDir() string {
	if fs, ok := p.Storage.(*storage.FileStore); ok {
		return fs.BasePath()
	}
	return ""
}

// Close releases backend connections.
func (p *Pipeline) Close() {
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.pool != nil {
		p.pool.Close()
	}
}

func newStorage(cfg *infra.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case infra.StorageBackendS3:
		return storage.NewS3Store(storage.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	default:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return storage.NewFileStore(path, cfg.StorageBaseURL)
	}
}

func newRegistry(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (*providers.Registry, error) {
	keys := make(map[string]string, 3)
	for provider, fallback := range map[string]string{
		credentials.ProviderQwen:   cfg.QwenAPIKey,
		credentials.ProviderKie:    cfg.KieAPIKey,
		credentials.ProviderGemini: cfg.GeminiAPIKey,
	} {
		key, err := creds.Resolve(ctx, provider, fallback)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("failed to load api key from store")
		}
		if key == "" {
			logger.Warn().Str("provider", provider).Msg("api key missing; submissions will fail")
		}
		keys[provider] = key
	}

	registry := providers.NewRegistry()
	registry.Register(providers.WithBreaker(qwen.NewClient(qwen.Options{
		APIKey:  keys[credentials.ProviderQwen],
		BaseURL: cfg.QwenBaseURL,
		Logger:  &logger,
	}), logger), qwen.Models...)
	registry.Register(providers.WithBreaker(kie.NewClient(kie.Options{
		APIKey:      keys[credentials.ProviderKie],
		BaseURL:     cfg.KieBaseURL,
		CallbackURL: cfg.CallbackURL(kie.Name),
		Logger:      &logger,
	}), logger), kie.Models...)
	registry.Register(providers.WithBreaker(genai.NewClient(genai.Options{
		APIKey:  keys[credentials.ProviderGemini],
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	}), logger), cfg.GeminiModel)

	if _, _, err := registry.Route(cfg.DefaultModel); err != nil {
		return nil, fmt.Errorf("DEFAULT_MODEL: %w", err)
	}
	registry.SetDefaultModel(cfg.DefaultModel)
	return registry, nil
}
