package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Log      LogConfig
	Bulk     BulkConfig
	Backup   BackupConfig
	Impact   ImpactConfig
	Usage    UsageConfig
	Stream   StreamConfig
	Webhook  WebhookConfig
	LLM      LLMConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	CORSOrigins     []string
	CORSCredentials bool
	CORSMaxAge      int
	RateLimitRPS    int
	RateLimitBurst  int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheTTLSeconds of 0 disables the record cache.
	CacheTTLSeconds int
}

func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type AuthConfig struct {
	JWTSecret string
}

type LogConfig struct {
	Level  string
	Format string
}

type BulkConfig struct {
	Concurrency int
	// AsyncThreshold is the batch size from which bulk requests go to the
	// worker queue.
	AsyncThreshold int
}

type BackupConfig struct {
	ListCap int
}

type ImpactConfig struct {
	WeightTeam       int
	WeightUser       int
	WeightUsage      int
	HighThreshold    int
	HighUsage        int
	RecentWindowDays int
}

type UsageConfig struct {
	BatchSize       int
	FlushIntervalMS int
}

type StreamConfig struct {
	PollIntervalMS int
}

type WebhookConfig struct {
	MaxAttempts int
	QueueSize   int
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type WorkerConfig struct {
	Concurrency int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			CORSOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			CORSCredentials: getEnv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
		},
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"SERVER_PORT", &cfg.Server.Port, 8080},
		{"CORS_MAX_AGE_SECONDS", &cfg.Server.CORSMaxAge, 3600},
		{"RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS, 100},
		{"RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst, 200},
		{"DB_MAX_CONNS", &cfg.Database.MaxConns, 20},
		{"DB_MIN_CONNS", &cfg.Database.MinConns, 5},
		{"REDIS_DB", &cfg.Redis.DB, 0},
		{"CACHE_TTL_SECONDS", &cfg.Redis.CacheTTLSeconds, 60},
		{"BULK_CONCURRENCY", &cfg.Bulk.Concurrency, 8},
		{"BULK_ASYNC_THRESHOLD", &cfg.Bulk.AsyncThreshold, 100},
		{"BACKUP_LIST_CAP", &cfg.Backup.ListCap, 200},
		{"IMPACT_WEIGHT_TEAM", &cfg.Impact.WeightTeam, 10},
		{"IMPACT_WEIGHT_USER", &cfg.Impact.WeightUser, 5},
		{"IMPACT_WEIGHT_USAGE", &cfg.Impact.WeightUsage, 1},
		{"IMPACT_HIGH_THRESHOLD", &cfg.Impact.HighThreshold, 100},
		{"IMPACT_HIGH_USAGE", &cfg.Impact.HighUsage, 50},
		{"IMPACT_RECENT_DAYS", &cfg.Impact.RecentWindowDays, 7},
		{"USAGE_BATCH_SIZE", &cfg.Usage.BatchSize, 20},
		{"USAGE_FLUSH_INTERVAL_MS", &cfg.Usage.FlushIntervalMS, 5000},
		{"STREAM_POLL_INTERVAL_MS", &cfg.Stream.PollIntervalMS, 2000},
		{"WEBHOOK_MAX_ATTEMPTS", &cfg.Webhook.MaxAttempts, 3},
		{"WEBHOOK_QUEUE_SIZE", &cfg.Webhook.QueueSize, 1000},
		{"LLM_MAX_RETRIES", &cfg.LLM.MaxRetries, 3},
		{"WORKER_CONCURRENCY", &cfg.Worker.Concurrency, 10},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = n
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings the API server cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "AUTH_JWT_SECRET is required")
	}
	if c.Server.CORSCredentials && slices.Contains(c.Server.CORSOrigins, "*") {
		problems = append(problems, "CORS_ALLOW_CREDENTIALS needs explicit CORS_ALLOWED_ORIGINS, not *")
	}
	if c.Bulk.Concurrency < 1 || c.Bulk.Concurrency > 32 {
		problems = append(problems, "BULK_CONCURRENCY must be between 1 and 32")
	}
	if c.Backup.ListCap < 1 {
		problems = append(problems, "BACKUP_LIST_CAP must be positive")
	}
	if c.Usage.BatchSize < 1 || c.Usage.FlushIntervalMS < 1 {
		problems = append(problems, "USAGE_BATCH_SIZE and USAGE_FLUSH_INTERVAL_MS must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
