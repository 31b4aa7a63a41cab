package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load(mapLookup(nil))

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, int64(50), cfg.Credits.CarryOverCap)
	require.Equal(t, int64(500), cfg.Credits.MonthlyPurchaseCap)
	require.Equal(t, 4, cfg.Limits.SubtaskMaxFree)
	require.Equal(t, 10, cfg.Limits.SubtaskMaxPro)
	require.Equal(t, 100, cfg.Rates.GeneralPerMinute)
	require.Equal(t, 600*time.Second, cfg.Worker.StaleLockTimeout)
	require.Equal(t, 3, cfg.Worker.MaxAttempts)
	require.Equal(t, 300, cfg.AIMaxStreamSeconds)
}

func TestLoadOverrides(t *testing.T) {
	cfg := Load(mapLookup(map[string]string{
		"TASKHIVE_PORT":                     "9000",
		"TASKHIVE_ACCESS_TOKEN_TTL_MINUTES": "30",
		"TASKHIVE_ALLOWED_ORIGINS":          "https://app.taskhive.dev, https://staging.taskhive.dev",
		"TASKHIVE_WORKER_POLL_INTERVAL":     "250ms",
	}))

	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, []string{"https://app.taskhive.dev", "https://staging.taskhive.dev"}, cfg.AllowedOrigins)
	require.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
}

func TestLoadIgnoresInvalidNumerics(t *testing.T) {
	cfg := Load(mapLookup(map[string]string{
		"TASKHIVE_DB_MAX_CONNS":     "not-a-number",
		"TASKHIVE_RATE_AI":          "-5",
		"TASKHIVE_METRICS_ENABLED":  "definitely",
	}))

	require.Equal(t, int32(15), cfg.DBPoolMaxConns)
	require.Equal(t, 20, cfg.Rates.AIPerMinute)
	require.True(t, cfg.MetricsEnabled)
}
