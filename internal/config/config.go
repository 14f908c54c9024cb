// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes worker settings,
// store endpoints, guard limits, and observability options.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/convoflow/go-message-pipeline/internal/sysutil"
)

// RedisConfig defines the connection settings for the shared fast-store and
// the job queue, which share one Redis deployment.
type RedisConfig struct {
	Addr     string // REDIS_ADDR, host:port
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// QueueConfig defines the job queue runtime settings.
type QueueConfig struct {
	Workers       int           // QUEUE_WORKERS
	MaxAttempts   int           // QUEUE_MAX_ATTEMPTS
	RetryBackoff  time.Duration // QUEUE_RETRY_BACKOFF (base, doubled per attempt)
	JobTTL        time.Duration // QUEUE_JOB_TTL
	SweepInterval time.Duration // QUEUE_SWEEP_INTERVAL (stuck-job sweeper)
	SweepMaxAge   time.Duration // QUEUE_SWEEP_MAX_AGE
}

// LimitsConfig defines the admission-guard budgets.
type LimitsConfig struct {
	ConversationLimit  int           // RATE_CONVERSATION_LIMIT, messages per window
	ConversationWindow time.Duration // RATE_CONVERSATION_WINDOW
	SenderLimit        int           // RATE_SENDER_LIMIT
	SenderWindow       time.Duration // RATE_SENDER_WINDOW
	IdempotencyTTL     time.Duration // IDEMPOTENCY_TTL, dedup-key lifetime
}

// ProviderConfig defines the outward collaborator endpoints.
type ProviderConfig struct {
	GeneratorURL    string        // GENERATOR_URL, reply generation service
	DeliveryURL     string        // DELIVERY_URL, outbound provider gateway
	RequestTimeout  time.Duration // PROVIDER_TIMEOUT
	SendRatePerSec  float64       // PROVIDER_SEND_RPS, outbound pacing
	SendBurst       int           // PROVIDER_SEND_BURST
	HistoryMessages int           // PROVIDER_HISTORY_MESSAGES, context window for generation
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the worker process.
type Config struct {
	// Ops HTTP server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Stores
	DBPath string // SQLite path
	Redis  RedisConfig

	// Pipeline
	Queue    QueueConfig
	Limits   LimitsConfig
	Provider ProviderConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Ops HTTP server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Stores
		DBPath: getenv("DB_PATH", "app.db"),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Queue runtime
		Queue: QueueConfig{
			Workers:       getint("QUEUE_WORKERS", 4),
			MaxAttempts:   getint("QUEUE_MAX_ATTEMPTS", 3),
			RetryBackoff:  getdur("QUEUE_RETRY_BACKOFF", 5*time.Second),
			JobTTL:        getdur("QUEUE_JOB_TTL", 24*time.Hour),
			SweepInterval: getdur("QUEUE_SWEEP_INTERVAL", time.Minute),
			SweepMaxAge:   getdur("QUEUE_SWEEP_MAX_AGE", 10*time.Minute),
		},

		// Admission guards
		Limits: LimitsConfig{
			ConversationLimit:  getint("RATE_CONVERSATION_LIMIT", 5),
			ConversationWindow: getdur("RATE_CONVERSATION_WINDOW", 30*time.Second),
			SenderLimit:        getint("RATE_SENDER_LIMIT", 20),
			SenderWindow:       getdur("RATE_SENDER_WINDOW", 300*time.Second),
			IdempotencyTTL:     getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		},

		// External collaborators
		Provider: ProviderConfig{
			GeneratorURL:    getenv("GENERATOR_URL", "http://localhost:9090/generate"),
			DeliveryURL:     getenv("DELIVERY_URL", "http://localhost:9091/send"),
			RequestTimeout:  getdur("PROVIDER_TIMEOUT", 30*time.Second),
			SendRatePerSec:  getfloat("PROVIDER_SEND_RPS", 10.0),
			SendBurst:       getint("PROVIDER_SEND_BURST", 20),
			HistoryMessages: getint("PROVIDER_HISTORY_MESSAGES", 20),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-message-pipeline"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.Queue.Workers < 1 {
		return cfg, errors.New("QUEUE_WORKERS must be >= 1")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return cfg, errors.New("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Queue.RetryBackoff <= 0 {
		return cfg, errors.New("QUEUE_RETRY_BACKOFF must be > 0")
	}
	if cfg.Limits.ConversationLimit < 1 || cfg.Limits.SenderLimit < 1 {
		return cfg, errors.New("rate limits must be >= 1")
	}
	if cfg.Limits.ConversationWindow <= 0 || cfg.Limits.SenderWindow <= 0 {
		return cfg, errors.New("rate windows must be positive durations")
	}
	if cfg.Limits.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Provider.RequestTimeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.Provider.SendRatePerSec <= 0 {
		return cfg, errors.New("PROVIDER_SEND_RPS must be > 0")
	}
	if cfg.Provider.SendBurst < 1 {
		return cfg, errors.New("PROVIDER_SEND_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- env helpers ----

func getenv(k, def string) string {
	return sysutil.FirstNonEmpty(os.Getenv(k), def)
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		// Only an explicit falsy value overrides the default.
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
