package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ASO-Pulse service.
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Warehouse WarehouseConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Dispatch  DispatchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Insights  InsightsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// UpstreamConfig configures the HTTP analytics backend.
type UpstreamConfig struct {
	// Source selects the metrics backend: "http" or "clickhouse".
	Source  string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WarehouseConfig configures the direct ClickHouse metrics source.
type WarehouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxConns     int
	MinConns     int
	ConnLifetime time.Duration
	ConnIdleTime time.Duration
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// CacheConfig configures the Redis snapshot cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// DispatchConfig configures the background intelligence dispatcher.
type DispatchConfig struct {
	DebounceWindow time.Duration
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// InsightsConfig holds aggregation-facing knobs.
type InsightsConfig struct {
	// ComparisonPolicy selects the previous-period boundary for deltas:
	// "previous_period" or "none".
	ComparisonPolicy string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ASO_PULSE_HTTP_ADDR", ":8080"),
			Env:             getEnv("ASO_PULSE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ASO_PULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Upstream: UpstreamConfig{
			Source:  getEnv("ASO_PULSE_METRICS_SOURCE", "http"),
			BaseURL: getEnv("ASO_PULSE_UPSTREAM_URL", "http://localhost:9000"),
			APIKey:  getEnv("ASO_PULSE_UPSTREAM_API_KEY", ""),
			Timeout: getDurationEnv("ASO_PULSE_UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Warehouse: WarehouseConfig{
			Addr:     getEnv("ASO_PULSE_CH_ADDR", "localhost:9440"),
			Database: getEnv("ASO_PULSE_CH_DATABASE", "asopulse"),
			Username: getEnv("ASO_PULSE_CH_USER", "default"),
			Password: getEnv("ASO_PULSE_CH_PASSWORD", ""),
			Table:    getEnv("ASO_PULSE_CH_TABLE", "app_store_metrics_daily"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("ASO_PULSE_DB_HOST", "localhost"),
			Port:     getIntEnv("ASO_PULSE_DB_PORT", 5432),
			User:     getEnv("ASO_PULSE_DB_USER", "asopulse"),
			Password: getEnv("ASO_PULSE_DB_PASSWORD", "asopulse_secret"),
			DBName:   getEnv("ASO_PULSE_DB_NAME", "asopulse"),
			SSLMode:  getEnv("ASO_PULSE_DB_SSLMODE", "disable"),
			MaxConns:     getIntEnv("ASO_PULSE_DB_MAX_CONNS", 25),
			MinConns:     getIntEnv("ASO_PULSE_DB_MIN_CONNS", 5),
			ConnLifetime: getDurationEnv("ASO_PULSE_DB_CONN_LIFETIME", time.Hour),
			ConnIdleTime: getDurationEnv("ASO_PULSE_DB_CONN_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ASO_PULSE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ASO_PULSE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ASO_PULSE_REDIS_DB", 0),
			PoolSize: getIntEnv("ASO_PULSE_REDIS_POOL_SIZE", 20),
		},
		Cache: CacheConfig{
			Enabled: getBoolEnv("ASO_PULSE_CACHE_ENABLED", true),
			TTL:     getDurationEnv("ASO_PULSE_CACHE_TTL", 5*time.Minute),
		},
		Dispatch: DispatchConfig{
			DebounceWindow: getDurationEnv("ASO_PULSE_DISPATCH_DEBOUNCE", 100*time.Millisecond),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ASO_PULSE_AUTH_ENABLED", true),
			MasterKey: getEnv("ASO_PULSE_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ASO_PULSE_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ASO_PULSE_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ASO_PULSE_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("ASO_PULSE_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("ASO_PULSE_LOG_LEVEL", "info"),
			Format: getEnv("ASO_PULSE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ASO_PULSE_METRICS_ENABLED", true),
			Path:    getEnv("ASO_PULSE_METRICS_PATH", "/metrics"),
		},
		Insights: InsightsConfig{
			ComparisonPolicy: getEnv("ASO_PULSE_COMPARISON_POLICY", "previous_period"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ASO_PULSE_API_KEY_MASTER is required when auth is enabled")
	}
	switch c.Upstream.Source {
	case "http", "clickhouse":
	default:
		return fmt.Errorf("ASO_PULSE_METRICS_SOURCE must be http or clickhouse, got %q", c.Upstream.Source)
	}
	switch c.Insights.ComparisonPolicy {
	case "previous_period", "none":
	default:
		return fmt.Errorf("ASO_PULSE_COMPARISON_POLICY must be previous_period or none, got %q", c.Insights.ComparisonPolicy)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
