// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except secrets and connection URLs.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_READ_TIMEOUT="15s"
//	GATEKEEPER_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GATEKEEPER_POSTGRES_URL="postgres://localhost/gatekeeper"
//	GATEKEEPER_POSTGRES_MAX_CONNS="20"
//	GATEKEEPER_REDIS_URL="localhost:6379"
//	GATEKEEPER_REDIS_POOL_SIZE="10"
//
// Token settings:
//
//	GATEKEEPER_TOKEN_SECRET=""          # required, at least 32 bytes
//	GATEKEEPER_ACCESS_TOKEN_TTL="30m"
//	GATEKEEPER_REFRESH_TOKEN_TTL="720h"
//	GATEKEEPER_TOKEN_SWEEP_SCHEDULE="@hourly"
//
// Access control and rate limiting:
//
//	GATEKEEPER_ROLES_PATH="/etc/gatekeeper/roles.yaml"
//	GATEKEEPER_ROLES_WATCH="true"
//	GATEKEEPER_RATELIMIT_ENABLED="true"
//	GATEKEEPER_RATELIMIT_RULES_PATH="/etc/gatekeeper/ratelimits.yaml"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
//	GATEKEEPER_OTEL_ENABLED="true"
//	GATEKEEPER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
