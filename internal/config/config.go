// Package config provides client configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Persisted key/value backends.
const (
	KVBackendMemory = "memory"
	KVBackendRedis  = "redis"
	KVBackendSQLite = "sqlite"
)

// Config holds client configuration values loaded from file or environment variables.
type Config struct {
	Env             string        `mapstructure:"APP_ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	APITimeout      time.Duration `mapstructure:"API_TIMEOUT"`
	KVBackend       string        `mapstructure:"KV_BACKEND"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	SQLitePath      string        `mapstructure:"SQLITE_PATH"`
	PageSize        int           `mapstructure:"PAGE_SIZE"`
	ScrollProximity float64       `mapstructure:"SCROLL_PROXIMITY"`
	FeatureFlags    string        `mapstructure:"FEATURE_FLAGS"`
	TracingEnabled  bool          `mapstructure:"TRACING_ENABLED"`
	TracingExporter string        `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string        `mapstructure:"OTLP_ENDPOINT"`
	FakeAPIPort     string        `mapstructure:"FAKEAPI_PORT"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
}

var defaults = map[string]any{
	"APP_ENV":          "development",
	"LOG_LEVEL":        "info",
	"API_BASE_URL":     "http://localhost:8375/api",
	"API_TIMEOUT":      "10s",
	"KV_BACKEND":       KVBackendMemory,
	"REDIS_URL":        "localhost:6379",
	"SQLITE_PATH":      "feedsync.db",
	"PAGE_SIZE":        10,
	"SCROLL_PROXIMITY": 300.0,
	"FEATURE_FLAGS":    "toggle_sequence_guard=on",
	"TRACING_ENABLED":  false,
	"TRACING_EXPORTER": "stdout",
	"OTLP_ENDPOINT":    "localhost:4318",
	"FAKEAPI_PORT":     "8375",
	"JWT_SECRET":       "your-secret-key-change-in-production",
}

// LoadConfig loads configuration from config.yml (plus an optional
// config.<env>.yml profile) and environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{".", ".."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// The base file is optional.
	_ = v.ReadInConfig()

	env := strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if env != "" && env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.KVBackend = strings.ToLower(strings.TrimSpace(config.KVBackend))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and usable.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	if c.APITimeout <= 0 {
		return errors.New("API_TIMEOUT must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("PAGE_SIZE must be positive")
	}
	if c.ScrollProximity < 0 {
		return errors.New("SCROLL_PROXIMITY must not be negative")
	}

	switch c.KVBackend {
	case KVBackendMemory:
	case KVBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	case KVBackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.KVBackend)
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction && !strings.HasPrefix(c.APIBaseURL, "https://") {
		log.Println("WARNING: API_BASE_URL is not https in production. Bearer credentials will travel in clear text.")
	}

	return nil
}
