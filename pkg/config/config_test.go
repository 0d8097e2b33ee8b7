package config

import (
	"os"
	"testing"
	"time"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "not-a-number",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: time.Second,
			envValue:     "30m",
			want:         30 * time.Minute,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: time.Second,
			envValue:     "bogus",
			want:         time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: time.Second,
			envValue:     "",
			want:         time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func validTestConfig() *Config {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Token:         loadTokenConfig(),
		RBAC:          loadRBACConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}
	cfg.Storage.PostgresURL = "postgres://gatekeeper@localhost/gatekeeper?sslmode=disable"
	cfg.Storage.RedisURL = "localhost:6379"
	cfg.Token.SigningSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

// TestConfigValidate tests configuration validation
func TestConfigValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validTestConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected valid config, got error: %v", err)
		}
	})

	t.Run("missing server port fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.Port = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing server port")
		}
	})

	t.Run("same server and health port fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.HealthPort = cfg.Server.Port
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for duplicate ports")
		}
	})

	t.Run("missing postgres URL fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Storage.PostgresURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing postgres URL")
		}
	})

	t.Run("missing redis URL fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Storage.RedisURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing redis URL")
		}
	})

	t.Run("missing signing secret fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Token.SigningSecret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing signing secret")
		}
	})

	t.Run("short signing secret fails", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Token.SigningSecret = "too-short"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for short signing secret")
		}
	})

	t.Run("refresh TTL must exceed access TTL", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Token.RefreshTokenTTL = cfg.Token.AccessTokenTTL
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for refresh TTL not exceeding access TTL")
		}
	})

	t.Run("otel enabled requires endpoint", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing OTel endpoint")
		}
	})
}

// TestLoadConfig tests loading configuration from environment
func TestLoadConfig(t *testing.T) {
	t.Run("fails without required secrets", func(t *testing.T) {
		os.Unsetenv("GATEKEEPER_TOKEN_SECRET")
		os.Unsetenv("GATEKEEPER_POSTGRES_URL")

		_, err := LoadConfig()
		if err == nil {
			t.Error("Expected error without required configuration")
		}
	})

	t.Run("loads with env overrides", func(t *testing.T) {
		os.Setenv("GATEKEEPER_POSTGRES_URL", "postgres://gatekeeper@localhost/gatekeeper?sslmode=disable")
		os.Setenv("GATEKEEPER_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
		os.Setenv("GATEKEEPER_ACCESS_TOKEN_TTL", "15m")
		os.Setenv("GATEKEEPER_LOG_LEVEL", "debug")
		defer func() {
			os.Unsetenv("GATEKEEPER_POSTGRES_URL")
			os.Unsetenv("GATEKEEPER_TOKEN_SECRET")
			os.Unsetenv("GATEKEEPER_ACCESS_TOKEN_TTL")
			os.Unsetenv("GATEKEEPER_LOG_LEVEL")
		}()

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if cfg.Token.AccessTokenTTL != 15*time.Minute {
			t.Errorf("Expected access TTL 15m, got %v", cfg.Token.AccessTokenTTL)
		}
		if cfg.Observability.LogLevel != observability.DebugLevel {
			t.Errorf("Expected debug log level, got %v", cfg.Observability.LogLevel)
		}
		if cfg.Token.Issuer != "gatekeeper" {
			t.Errorf("Expected default issuer, got %s", cfg.Token.Issuer)
		}
		if cfg.Token.RefreshTokenTTL != 30*24*time.Hour {
			t.Errorf("Expected default refresh TTL 720h, got %v", cfg.Token.RefreshTokenTTL)
		}
	})
}
