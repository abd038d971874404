package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ASO_PULSE_API_KEY_MASTER", "test-master-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http", cfg.Upstream.Source)
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatch.DebounceWindow)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "previous_period", cfg.Insights.ComparisonPolicy)
	assert.Equal(t, time.Hour, cfg.Database.ConnLifetime)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnIdleTime)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.True(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.Auth.SkipPaths, "/health")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ASO_PULSE_API_KEY_MASTER", "k")
	t.Setenv("ASO_PULSE_METRICS_SOURCE", "clickhouse")
	t.Setenv("ASO_PULSE_CH_ADDR", "warehouse:9440")
	t.Setenv("ASO_PULSE_DISPATCH_DEBOUNCE", "250ms")
	t.Setenv("ASO_PULSE_COMPARISON_POLICY", "none")
	t.Setenv("ASO_PULSE_RATE_LIMIT_RPS", "12.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "clickhouse", cfg.Upstream.Source)
	assert.Equal(t, "warehouse:9440", cfg.Warehouse.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.DebounceWindow)
	assert.Equal(t, "none", cfg.Insights.ComparisonPolicy)
	assert.Equal(t, 12.5, cfg.RateLimit.RPS)
}

func TestValidate(t *testing.T) {
	t.Run("auth enabled requires master key", func(t *testing.T) {
		t.Setenv("ASO_PULSE_API_KEY_MASTER", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("auth can be disabled without a key", func(t *testing.T) {
		t.Setenv("ASO_PULSE_AUTH_ENABLED", "false")
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("unknown metrics source rejected", func(t *testing.T) {
		t.Setenv("ASO_PULSE_API_KEY_MASTER", "k")
		t.Setenv("ASO_PULSE_METRICS_SOURCE", "bigquery")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown comparison policy rejected", func(t *testing.T) {
		t.Setenv("ASO_PULSE_API_KEY_MASTER", "k")
		t.Setenv("ASO_PULSE_COMPARISON_POLICY", "same_period_last_year")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		DBName: "aso", SSLMode: "require",
	}
	assert.Equal(t, "postgres://u:p@db:5433/aso?sslmode=require", d.DSN())
}
