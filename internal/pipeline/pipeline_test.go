package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/exchange"
	"genqueue/internal/infra"
	"genqueue/internal/queue"
)

func memoryConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		PublicBaseURL:     "http://localhost:8080",
		JobStore:          infra.JobStoreMemory,
		QueuePrefix:       "genqueue",
		ExchangeBackend:   infra.BackendMemory,
		ExchangeTTL:       10 * time.Minute,
		PollInterval:      time.Second,
		PollMaxAttempts:   3,
		WorkerConcurrency: 2,
		StorageBackend:    infra.StorageBackendFile,
		StoragePath:       t.TempDir(),
		StorageBaseURL:    "http://localhost:8080/static",
		FetchMaxBytes:     1 << 20,
		GeminiModel:       "gemini-2.5-flash-image",
		DefaultModel:      "qwen-image",
	}
}

func TestBuildInMemory(t *testing.T) {
	cfg := memoryConfig(t)
	p, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer p.Close()

	if _, ok := p.Queue.(*queue.MemoryQueue); !ok {
		t.Fatalf("queue = %T, want memory queue", p.Queue)
	}
	if _, ok := p.Exchange.(*exchange.MemoryStore); !ok {
		t.Fatalf("exchange = %T, want memory store", p.Exchange)
	}
	if p.Users != nil {
		t.Fatalf("memory store should have no user repository")
	}
	if p.StaticDir() != cfg.StoragePath {
		t.Fatalf("static dir = %q, want %q", p.StaticDir(), cfg.StoragePath)
	}

	for model, provider := range map[string]string{
		"":                       "qwen",
		"qwen-image":             "qwen",
		"google/nano-banana":     "kie",
		"gemini-2.5-flash-image": "gemini",
	} {
		_, adapter, err := p.Registry.Route(model)
		if err != nil {
			t.Fatalf("route %q: %v", model, err)
		}
		if adapter.Name() != provider {
			t.Fatalf("route %q -> %s, want %s", model, adapter.Name(), provider)
		}
	}

	if p.NewAdmitter() == nil || p.NewWorker() == nil || p.NewReaper() == nil {
		t.Fatalf("constructors returned nil")
	}
}

func TestBuildRejectsUnknownDefaultModel(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.DefaultModel = "does-not-exist"
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown default model")
	}
}
