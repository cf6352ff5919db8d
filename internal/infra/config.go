package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	JobStorePostgres = "postgres"
	JobStoreMemory   = "memory"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	StorageBackendFile = "file"
	StorageBackendS3   = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string
	DatabaseURL   string
	JobStore      string
	JWTSecret     string

	RedisURL    string
	QueuePrefix string

	ExchangeBackend string
	ExchangeTTL     time.Duration

	PollInterval       time.Duration
	PollMaxAttempts    int
	WorkerConcurrency  int
	WorkerEmbedded     bool
	WorkerIdleInterval time.Duration
	SweepInterval      time.Duration
	OrphanAfter        time.Duration
	StaleAfter         time.Duration

	StorageBackend   string
	StoragePath      string
	StorageBaseURL   string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3PublicBaseURL  string
	FetchMaxBytes    int64
	CallbackSecret   string
	QwenAPIKey       string
	QwenBaseURL      string
	KieAPIKey        string
	KieBaseURL       string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
	DefaultModel     string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	publicBase := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		PublicBaseURL: publicBase,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JobStore:      strings.ToLower(getEnv("JOB_STORE", JobStorePostgres)),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		RedisURL:    os.Getenv("REDIS_URL"),
		QueuePrefix: getEnv("QUEUE_PREFIX", "genqueue"),

		ExchangeBackend: strings.ToLower(getEnv("EXCHANGE_BACKEND", BackendMemory)),
		ExchangeTTL:     time.Second * time.Duration(getEnvInt("EXCHANGE_TTL_SECONDS", 600)),

		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1500)),
		PollMaxAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", 20),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerEmbedded:     getEnvBool("WORKER_EMBEDDED", true),
		WorkerIdleInterval: time.Second * time.Duration(getEnvInt("WORKER_IDLE_INTERVAL_SECONDS", 2)),
		SweepInterval:      time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),
		OrphanAfter:        time.Minute * time.Duration(getEnvInt("ORPHAN_AFTER_MINUTES", 30)),
		StaleAfter:         time.Minute * time.Duration(getEnvInt("STALE_AFTER_MINUTES", 20)),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFile)),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   strings.TrimRight(getEnv("STORAGE_BASE_URL", publicBase+"/static"), "/"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3PublicBaseURL:  os.Getenv("S3_PUBLIC_BASE_URL"),
		FetchMaxBytes:    int64(getEnvInt("FETCH_MAX_BYTES", 25<<20)),
		CallbackSecret:   os.Getenv("CALLBACK_SECRET"),
		QwenAPIKey:       os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:      getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		KieAPIKey:        os.Getenv("KIE_API_KEY"),
		KieBaseURL:       getEnv("KIE_BASE_URL", "https://api.kie.ai"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		DefaultModel:     getEnv("DEFAULT_MODEL", "qwen-image"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.JobStore {
	case JobStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case JobStoreMemory:
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.JobStore)
	}

	switch cfg.ExchangeBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis exchange backend")
		}
	default:
		return nil, fmt.Errorf("unsupported EXCHANGE_BACKEND %q", cfg.ExchangeBackend)
	}

	switch cfg.StorageBackend {
	case StorageBackendFile:
	case StorageBackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 20
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// CallbackURL returns the public callback endpoint for a provider.
func (c *Config) CallbackURL(provider string) string {
	u := c.PublicBaseURL + "/v1/callbacks/" + provider
	if c.CallbackSecret != "" {
		u += "?token=" + url.QueryEscape(c.CallbackSecret)
	}
	return u
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
