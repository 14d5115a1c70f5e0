// Package config loads gateway configuration from, in order of
// precedence, bound flags, GANTZ_-prefixed environment variables, and
// config.yaml under $XDG_CONFIG_HOME/gantz.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the gateway's environment variables, e.g.
// GANTZ_API_PORT.
const EnvPrefix = "GANTZ"

type Config struct {
	DatabaseURL  string
	APIPort      int
	MCPPort      int
	ManifestPath string

	// AdminTokenName names the bootstrap admin token issued on first run.
	AdminTokenName string

	DefaultBudgetMS int64
	MaxBudgetMS     int64

	ExecConcurrency   int64
	ExecQueueWhenFull bool

	Cache     CacheConfig
	Telemetry TelemetryConfig

	LocalMode   bool
	Debug       bool
	Environment string

	RunRetentionDays int
}

type CacheConfig struct {
	Enabled    bool
	Backend    string
	DefaultTTL time.Duration
	Redis      RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type TelemetryConfig struct {
	Enabled  bool
	Endpoint string
}

// DefaultBudget returns the default per-request budget as a duration.
func (c *Config) DefaultBudget() time.Duration {
	return time.Duration(c.DefaultBudgetMS) * time.Millisecond
}

// MaxBudget returns the server-wide budget ceiling as a duration.
func (c *Config) MaxBudget() time.Duration {
	return time.Duration(c.MaxBudgetMS) * time.Millisecond
}

// Load builds the config from viper with environment fallbacks, so it
// works both under the CLI (flags and config file bound) and standalone.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getStringOrDefault("database_url", defaultDatabasePath()),
		APIPort:           getIntOrDefault("api_port", 8585),
		MCPPort:           getIntOrDefault("mcp_port", 8586),
		ManifestPath:      getStringOrDefault("manifest", "gantz.yaml"),
		AdminTokenName:    getStringOrDefault("admin_token_name", "admin"),
		DefaultBudgetMS:   int64(getIntOrDefault("default_budget_ms", 30000)),
		MaxBudgetMS:       int64(getIntOrDefault("max_budget_ms", 120000)),
		ExecConcurrency:   int64(getIntOrDefault("exec_concurrency", runtime.NumCPU()*4)),
		ExecQueueWhenFull: getBoolOrDefault("exec_queue_when_full", false),
		Cache: CacheConfig{
			Enabled: getBoolOrDefault("cache.enabled", true),
			Backend: getStringOrDefault("cache.backend", "memory"),
			Redis: RedisConfig{
				Addr:     getStringOrDefault("cache.redis.addr", "localhost:6379"),
				Password: getStringOrDefault("cache.redis.password", ""),
				DB:       getIntOrDefault("cache.redis.db", 0),
				Prefix:   getStringOrDefault("cache.redis.prefix", "gantz"),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:  getBoolOrDefault("telemetry.enabled", true),
			Endpoint: getStringOrDefault("telemetry.endpoint", ""),
		},
		LocalMode:        getBoolOrDefault("local_mode", false),
		Debug:            getBoolOrDefault("debug", false),
		Environment:      getStringOrDefault("environment", "development"),
		RunRetentionDays: getIntOrDefault("run_retention_days", 30),
	}

	ttl, err := time.ParseDuration(getStringOrDefault("cache.default_ttl", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid cache.default_ttl: %w", err)
	}
	cfg.Cache.DefaultTTL = ttl

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port %d is out of range", c.APIPort)
	}
	if c.MCPPort <= 0 || c.MCPPort > 65535 {
		return fmt.Errorf("mcp_port %d is out of range", c.MCPPort)
	}
	if c.DefaultBudgetMS <= 0 {
		return fmt.Errorf("default_budget_ms must be positive, got %d", c.DefaultBudgetMS)
	}
	if c.MaxBudgetMS > 0 && c.MaxBudgetMS < c.DefaultBudgetMS {
		return fmt.Errorf("max_budget_ms %d is below default_budget_ms %d", c.MaxBudgetMS, c.DefaultBudgetMS)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.backend redis requires cache.redis.addr")
	}
	return nil
}

// GetWorkspacePath returns the gateway's config directory, preferring an
// explicit workspace setting over the XDG default.
func GetWorkspacePath() string {
	if workspace := viper.GetString("workspace"); workspace != "" {
		return workspace
	}
	return getXDGConfigDir()
}

func getXDGConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, _ := os.UserHomeDir()
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "gantz")
}

func defaultDatabasePath() string {
	return filepath.Join(GetWorkspacePath(), "gantz.db")
}

// The getters read viper first (flags, config file, AutomaticEnv when the
// CLI initialized it) and fall back to a direct environment lookup so
// Load works without the CLI wiring.

func getStringOrDefault(key, defaultValue string) string {
	if viper.IsSet(key) {
		if value := viper.GetString(key); value != "" {
			return value
		}
	}
	if value := os.Getenv(envName(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if value := os.Getenv(envName(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if value := os.Getenv(envName(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
