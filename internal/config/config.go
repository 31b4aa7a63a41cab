// Package config loads process configuration from the environment.
//
// Everything is plain env lookups with trimmed values and warn-on-invalid
// numerics so any field can be overridden in tests by supplying a lookup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvLookup resolves an environment variable. It matches os.LookupEnv so
// tests can substitute a map-backed lookup.
type EnvLookup func(key string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Config is the explicit application state constructed in main and injected
// into every handler and worker.
type Config struct {
	Environment    string
	Port           string
	AllowedOrigins []string

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	DatabaseURL     string
	DBPoolMaxConns  int32
	DBPingTimeout   time.Duration
	MigrateOnStart  bool

	KeysDir         string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	GoogleClientID string
	GoogleJWKSURL  string
	GoogleIssuers  []string

	WebhookSecret     string
	BillingGatewayURL string
	BillingGatewayKey string

	AIBaseURL          string
	AIAPIKey           string
	AIChatTimeout      time.Duration
	AITranscribeTimeout time.Duration
	AIMaxStreamSeconds int

	Credits CreditConfig
	Limits  LimitConfig
	Rates   RateLimitConfig

	Worker WorkerConfig
}

// CreditConfig holds credit grant amounts and caps.
type CreditConfig struct {
	KickstartAmount    int64
	DailyAmount        int64
	MonthlyAmount      int64
	CarryOverCap       int64
	MonthlyPurchaseCap int64
}

// LimitConfig holds base entity caps per tier before achievement perks.
type LimitConfig struct {
	TaskMaxFree    int
	TaskMaxPro     int
	NoteMaxFree    int
	NoteMaxPro     int
	SubtaskMaxFree int
	SubtaskMaxPro  int
}

// RateLimitConfig holds per-bucket requests-per-minute limits.
type RateLimitConfig struct {
	GeneralPerMinute int
	AIPerMinute      int
	AuthPerMinute    int
}

// WorkerConfig holds job engine tuning.
type WorkerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	StaleLockTimeout time.Duration
	MaxAttempts      int
}

// Load builds a Config from the provided lookup, applying defaults.
func Load(lookup EnvLookup) Config {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	cfg := Config{
		Environment:    envString(lookup, "TASKHIVE_ENV", "development"),
		Port:           envString(lookup, "TASKHIVE_PORT", "8080"),
		AllowedOrigins: envList(lookup, "TASKHIVE_ALLOWED_ORIGINS"),

		LogLevel:       envString(lookup, "TASKHIVE_LOG_LEVEL", "info"),
		LogFormat:      envString(lookup, "TASKHIVE_LOG_FORMAT", "json"),
		MetricsEnabled: envBool(lookup, "TASKHIVE_METRICS_ENABLED", true),

		DatabaseURL:    envString(lookup, "TASKHIVE_DATABASE_URL", ""),
		DBPoolMaxConns: int32(envInt(lookup, "TASKHIVE_DB_MAX_CONNS", 15)),
		DBPingTimeout:  envDuration(lookup, "TASKHIVE_DB_PING_TIMEOUT", 5*time.Second),
		MigrateOnStart: envBool(lookup, "TASKHIVE_MIGRATE_ON_START", true),

		KeysDir:         envString(lookup, "TASKHIVE_KEYS_DIR", "keys"),
		JWTIssuer:       envString(lookup, "TASKHIVE_JWT_ISSUER", "taskhive"),
		AccessTokenTTL:  time.Duration(envInt(lookup, "TASKHIVE_ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(envInt(lookup, "TASKHIVE_REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,

		GoogleClientID: envString(lookup, "TASKHIVE_GOOGLE_CLIENT_ID", ""),
		GoogleJWKSURL:  envString(lookup, "TASKHIVE_GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		GoogleIssuers:  envListDefault(lookup, "TASKHIVE_GOOGLE_ISSUERS", []string{"https://accounts.google.com", "accounts.google.com"}),

		WebhookSecret:     envString(lookup, "TASKHIVE_WEBHOOK_SECRET", ""),
		BillingGatewayURL: envString(lookup, "TASKHIVE_BILLING_GATEWAY_URL", ""),
		BillingGatewayKey: envString(lookup, "TASKHIVE_BILLING_GATEWAY_KEY", ""),

		AIBaseURL:           envString(lookup, "TASKHIVE_AI_BASE_URL", ""),
		AIAPIKey:            envString(lookup, "TASKHIVE_AI_API_KEY", ""),
		AIChatTimeout:       envDuration(lookup, "TASKHIVE_AI_CHAT_TIMEOUT", 30*time.Second),
		AITranscribeTimeout: envDuration(lookup, "TASKHIVE_AI_TRANSCRIBE_TIMEOUT", 60*time.Second),
		AIMaxStreamSeconds:  envInt(lookup, "TASKHIVE_AI_MAX_STREAM_SECONDS", 300),

		Credits: CreditConfig{
			KickstartAmount:    int64(envInt(lookup, "TASKHIVE_CREDITS_KICKSTART", 25)),
			DailyAmount:        int64(envInt(lookup, "TASKHIVE_CREDITS_DAILY", 10)),
			MonthlyAmount:      int64(envInt(lookup, "TASKHIVE_CREDITS_MONTHLY", 300)),
			CarryOverCap:       int64(envInt(lookup, "TASKHIVE_CREDITS_CARRYOVER_CAP", 50)),
			MonthlyPurchaseCap: int64(envInt(lookup, "TASKHIVE_CREDITS_PURCHASE_CAP", 500)),
		},
		Limits: LimitConfig{
			TaskMaxFree:    envInt(lookup, "TASKHIVE_LIMIT_TASKS_FREE", 20),
			TaskMaxPro:     envInt(lookup, "TASKHIVE_LIMIT_TASKS_PRO", 200),
			NoteMaxFree:    envInt(lookup, "TASKHIVE_LIMIT_NOTES_FREE", 10),
			NoteMaxPro:     envInt(lookup, "TASKHIVE_LIMIT_NOTES_PRO", 25),
			SubtaskMaxFree: envInt(lookup, "TASKHIVE_LIMIT_SUBTASKS_FREE", 4),
			SubtaskMaxPro:  envInt(lookup, "TASKHIVE_LIMIT_SUBTASKS_PRO", 10),
		},
		Rates: RateLimitConfig{
			GeneralPerMinute: envInt(lookup, "TASKHIVE_RATE_GENERAL", 100),
			AIPerMinute:      envInt(lookup, "TASKHIVE_RATE_AI", 20),
			AuthPerMinute:    envInt(lookup, "TASKHIVE_RATE_AUTH", 10),
		},
		Worker: WorkerConfig{
			PollInterval:     envDuration(lookup, "TASKHIVE_WORKER_POLL_INTERVAL", 5*time.Second),
			BatchSize:        envInt(lookup, "TASKHIVE_WORKER_BATCH_SIZE", 10),
			StaleLockTimeout: envDuration(lookup, "TASKHIVE_WORKER_STALE_LOCK_TIMEOUT", 600*time.Second),
			MaxAttempts:      envInt(lookup, "TASKHIVE_WORKER_MAX_ATTEMPTS", 3),
		},
	}

	return cfg
}

func envString(lookup EnvLookup, key, fallback string) string {
	if raw, ok := lookup(key); ok {
		if value := strings.TrimSpace(raw); value != "" {
			return value
		}
	}
	return fallback
}

func envInt(lookup EnvLookup, key string, fallback int) int {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envBool(lookup EnvLookup, key string, fallback bool) bool {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(lookup EnvLookup, key string, fallback time.Duration) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envList(lookup EnvLookup, key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func envListDefault(lookup EnvLookup, key string, fallback []string) []string {
	if values := envList(lookup, key); len(values) > 0 {
		return values
	}
	return fallback
}
