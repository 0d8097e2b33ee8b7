package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Token service configuration
	Token TokenConfig

	// RBAC configuration
	RBAC RBACConfig

	// Rate limiter configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TokenConfig holds token service settings
type TokenConfig struct {
	// SigningSecret signs access tokens (HS256). Required.
	SigningSecret string
	Issuer        string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// SweepSchedule is a cron expression for the retention sweep.
	// SweepGrace is how long expired refresh rows are kept for audit
	// before the sweep deletes them.
	SweepSchedule string
	SweepGrace    time.Duration
}

// RBACConfig holds role registry settings
type RBACConfig struct {
	// RolesPath optionally points at a YAML overlay for role definitions
	// and route requirements. Empty means built-ins only.
	RolesPath string

	// WatchRoles reloads the registry when RolesPath changes on disk.
	WatchRoles bool
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Enabled bool

	// RulesPath optionally points at a YAML rules table. Empty means
	// built-in defaults only.
	RulesPath string

	// Plan lookups are cached to keep the limiter off the database
	// on the hot path.
	PlanCacheSize int
	PlanCacheTTL  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Token:         loadTokenConfig(),
		RBAC:          loadRBACConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEKEEPER_HOST", "0.0.0.0"),
		Port:            getEnv("GATEKEEPER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("GATEKEEPER_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if idleConns := getEnvInt("GATEKEEPER_POSTGRES_IDLE_CONNS", 0); idleConns > 0 {
		cfg.PostgresIdleConns = idleConns
	}
	if lifetime := getEnvDuration("GATEKEEPER_POSTGRES_CONN_LIFETIME", 0); lifetime > 0 {
		cfg.PostgresConnLifetime = lifetime
	}
	if timeout := getEnvDuration("GATEKEEPER_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("GATEKEEPER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATEKEEPER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATEKEEPER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadTokenConfig loads token service configuration from environment
func loadTokenConfig() TokenConfig {
	return TokenConfig{
		SigningSecret:   getEnv("GATEKEEPER_TOKEN_SECRET", ""),
		Issuer:          getEnv("GATEKEEPER_TOKEN_ISSUER", "gatekeeper"),
		AccessTokenTTL:  getEnvDuration("GATEKEEPER_ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getEnvDuration("GATEKEEPER_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		SweepSchedule:   getEnv("GATEKEEPER_TOKEN_SWEEP_SCHEDULE", "@hourly"),
		SweepGrace:      getEnvDuration("GATEKEEPER_TOKEN_SWEEP_GRACE", 7*24*time.Hour),
	}
}

// loadRBACConfig loads role registry configuration from environment
func loadRBACConfig() RBACConfig {
	return RBACConfig{
		RolesPath:  getEnv("GATEKEEPER_ROLES_PATH", ""),
		WatchRoles: getEnvBool("GATEKEEPER_ROLES_WATCH", false),
	}
}

// loadRateLimitConfig loads rate limiter configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       getEnvBool("GATEKEEPER_RATELIMIT_ENABLED", true),
		RulesPath:     getEnv("GATEKEEPER_RATELIMIT_RULES_PATH", ""),
		PlanCacheSize: getEnvInt("GATEKEEPER_PLAN_CACHE_SIZE", 10000),
		PlanCacheTTL:  getEnvDuration("GATEKEEPER_PLAN_CACHE_TTL", 5*time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(strings.ToLower(getEnv("GATEKEEPER_LOG_LEVEL", "info"))),
		MetricsEnabled:     getEnvBool("GATEKEEPER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEKEEPER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEKEEPER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEKEEPER_OTEL_SERVICE_NAME", "gatekeeper"),
		OTelServiceVersion: getEnv("GATEKEEPER_OTEL_SERVICE_VERSION", observability.Version),
		OTelInsecure:       getEnvBool("GATEKEEPER_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	// Validate token config
	if c.Token.SigningSecret == "" {
		return fmt.Errorf("token signing secret is required")
	}
	if len(c.Token.SigningSecret) < 32 {
		return fmt.Errorf("token signing secret must be at least 32 bytes")
	}
	if c.Token.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Token.RefreshTokenTTL <= c.Token.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}

	// Validate rate limit config
	if c.RateLimit.PlanCacheSize <= 0 {
		return fmt.Errorf("plan cache size must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
