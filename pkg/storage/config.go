// Package storage provides connection management for the Postgres and Redis
// backing stores.
package storage

import "time"

// Config for the backing stores
type Config struct {
	// PostgreSQL config
	PostgresURL          string
	PostgresMaxConns     int
	PostgresIdleConns    int
	PostgresConnLifetime time.Duration
	PostgresTimeout      time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:     20,
		PostgresIdleConns:    2,
		PostgresConnLifetime: 30 * time.Minute,
		PostgresTimeout:      5 * time.Second,
		RedisURL:             "localhost:6379",
		RedisDB:              0,
		RedisMaxRetries:      3,
		RedisPoolSize:        10,
	}
}
