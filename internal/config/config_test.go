package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetEnv(t *testing.T, keys ...string) {
	t.Helper()
	viper.Reset()
	for _, key := range keys {
		original := os.Getenv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if original == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, original)
			}
		})
	}
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetEnv(t, "GANTZ_API_PORT", "GANTZ_MCP_PORT", "GANTZ_DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load successfully, got error: %v", err)
	}

	if cfg.APIPort != 8585 {
		t.Errorf("Expected default API port to be 8585, got %d", cfg.APIPort)
	}
	if cfg.MCPPort != 8586 {
		t.Errorf("Expected default MCP port to be 8586, got %d", cfg.MCPPort)
	}
	if !strings.HasSuffix(cfg.DatabaseURL, "gantz.db") {
		t.Errorf("Expected database URL to end with 'gantz.db', got %s", cfg.DatabaseURL)
	}
	if cfg.DefaultBudgetMS != 30000 {
		t.Errorf("Expected default budget 30000ms, got %d", cfg.DefaultBudgetMS)
	}
	if cfg.MaxBudgetMS != 120000 {
		t.Errorf("Expected max budget 120000ms, got %d", cfg.MaxBudgetMS)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Expected memory cache backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.DefaultTTL != 60*time.Second {
		t.Errorf("Expected 60s default TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.RunRetentionDays != 30 {
		t.Errorf("Expected 30 day run retention, got %d", cfg.RunRetentionDays)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	resetEnv(t,
		"GANTZ_API_PORT", "GANTZ_DATABASE_URL", "GANTZ_CACHE_BACKEND",
		"GANTZ_CACHE_REDIS_ADDR", "GANTZ_DEFAULT_BUDGET_MS", "GANTZ_DEBUG",
	)

	os.Setenv("GANTZ_API_PORT", "9090")
	os.Setenv("GANTZ_DATABASE_URL", "test.db")
	os.Setenv("GANTZ_CACHE_BACKEND", "redis")
	os.Setenv("GANTZ_CACHE_REDIS_ADDR", "redis.internal:6379")
	os.Setenv("GANTZ_DEFAULT_BUDGET_MS", "5000")
	os.Setenv("GANTZ_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("Expected API port 9090, got %d", cfg.APIPort)
	}
	if cfg.DatabaseURL != "test.db" {
		t.Errorf("Expected database URL 'test.db', got %q", cfg.DatabaseURL)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Expected redis cache backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Expected redis addr override, got %q", cfg.Cache.Redis.Addr)
	}
	if cfg.DefaultBudgetMS != 5000 {
		t.Errorf("Expected default budget 5000ms, got %d", cfg.DefaultBudgetMS)
	}
	if !cfg.Debug {
		t.Error("Expected debug mode enabled")
	}
}

func TestLoad_ViperTakesPrecedence(t *testing.T) {
	resetEnv(t, "GANTZ_API_PORT")

	os.Setenv("GANTZ_API_PORT", "9090")
	viper.Set("api_port", 7070)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIPort != 7070 {
		t.Errorf("Expected bound flag value 7070 to win over env, got %d", cfg.APIPort)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"bad api port", "api_port", -1},
		{"bad cache backend", "cache.backend", "memcached"},
		{"max below default budget", "max_budget_ms", 1000},
		{"bad ttl", "cache.default_ttl", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEnv(t)
			viper.Set(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Fatalf("expected Load to reject %s=%v", tt.key, tt.val)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := &Config{DefaultBudgetMS: 1500, MaxBudgetMS: 60000}

	if cfg.DefaultBudget() != 1500*time.Millisecond {
		t.Errorf("DefaultBudget = %v", cfg.DefaultBudget())
	}
	if cfg.MaxBudget() != time.Minute {
		t.Errorf("MaxBudget = %v", cfg.MaxBudget())
	}
}
