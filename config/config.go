package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig is the per-provider section of the configuration.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Enabled bool
}

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Providers
	OpenAI ProviderConfig
	Claude ProviderConfig
	Gemini ProviderConfig
	// ProviderPriority overrides the fallback order, comma separated.
	ProviderPriority []string
	UpstreamTimeout  time.Duration

	// Identity
	SessionJWTSecret string
	AllowAnonymous   bool

	// Credits
	DemoCredits      int64
	CreditCostChat   int64
	CreditCostCode   int64
	CreditCostVision int64
	CreditCostOther  int64

	// Rate Limiting
	DefaultRateLimitRPM int64 // requests per minute per caller, default: 60

	// Background work
	WorkerCount     int
	WorkerQueueSize int

	// Observability
	LogLevel             slog.Level
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		OpenAI: ProviderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Claude: ProviderConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Model:   os.Getenv("CLAUDE_MODEL"),
		},
		Gemini: ProviderConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: os.Getenv("GEMINI_BASE_URL"),
			Model:   os.Getenv("GEMINI_MODEL"),
		},
		ProviderPriority:     splitList(os.Getenv("PROVIDER_PRIORITY")),
		SessionJWTSecret:     os.Getenv("SESSION_JWT_SECRET"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	bools := []struct {
		key      string
		fallback string
		dst      *bool
	}{
		{"OPENAI_ENABLED", "true", &cfg.OpenAI.Enabled},
		{"CLAUDE_ENABLED", "true", &cfg.Claude.Enabled},
		{"GEMINI_ENABLED", "true", &cfg.Gemini.Enabled},
		{"ALLOW_ANONYMOUS", "true", &cfg.AllowAnonymous},
	}
	for _, b := range bools {
		if *b.dst, err = strconv.ParseBool(getEnv(b.key, b.fallback)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", b.key, err)
		}
	}

	ints := []struct {
		key      string
		fallback string
		dst      *int64
	}{
		{"DEMO_CREDITS", "3", &cfg.DemoCredits},
		{"CREDIT_COST_CHAT", "1", &cfg.CreditCostChat},
		{"CREDIT_COST_CODE", "2", &cfg.CreditCostCode},
		{"CREDIT_COST_VISION", "2", &cfg.CreditCostVision},
		{"CREDIT_COST_OTHER", "1", &cfg.CreditCostOther},
		{"DEFAULT_RATE_LIMIT_RPM", "60", &cfg.DefaultRateLimitRPM},
	}
	for _, n := range ints {
		v, err := strconv.ParseInt(getEnv(n.key, n.fallback), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", n.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", n.key)
		}
		*n.dst = v
	}

	if cfg.WorkerCount, err = strconv.Atoi(getEnv("WORKER_COUNT", "4")); err != nil {
		return nil, fmt.Errorf("invalid WORKER_COUNT: %w", err)
	}
	if cfg.WorkerQueueSize, err = strconv.Atoi(getEnv("WORKER_QUEUE_SIZE", "256")); err != nil {
		return nil, fmt.Errorf("invalid WORKER_QUEUE_SIZE: %w", err)
	}
	if cfg.UpstreamTimeout, err = time.ParseDuration(getEnv("UPSTREAM_TIMEOUT", "120s")); err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
