package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajidk16/tadbeer/pkg/observability"
)

// Throttle backends
const (
	ThrottleBackendMemory = "memory"
	ThrottleBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Pipeline      PipelineConfig
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
}

// StorageConfig holds database and cache connection configuration
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// RedisURL is optional; set it to share the throttle counter across
	// instances
	RedisURL string
}

// PipelineConfig holds request-pipeline tunables
type PipelineConfig struct {
	// Throttle
	ThrottleQuota     int
	ThrottleWindow    time.Duration
	ThrottleBackend   string
	TrustForwardedFor bool

	// Session
	SecureCookies bool

	// Access control
	PolicyCacheTTL  time.Duration
	AppPrefixes     []string
	LoginPath       string
	VerifyEmailPath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	AuditEnabled   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Pipeline:      loadPipelineConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TADBEER_HOST", "0.0.0.0"),
		Port:            getEnv("TADBEER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TADBEER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TADBEER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TADBEER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TADBEER_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("TADBEER_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("TADBEER_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("TADBEER_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:  getEnvDuration("TADBEER_POSTGRES_TIMEOUT", 10*time.Second),
		RedisURL:         getEnv("TADBEER_REDIS_URL", ""),
	}
}

func loadPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ThrottleQuota:     getEnvInt("TADBEER_THROTTLE_QUOTA", 100),
		ThrottleWindow:    getEnvDuration("TADBEER_THROTTLE_WINDOW", time.Minute),
		ThrottleBackend:   getEnv("TADBEER_THROTTLE_BACKEND", ThrottleBackendMemory),
		TrustForwardedFor: getEnvBool("TADBEER_TRUST_FORWARDED_FOR", false),

		SecureCookies: getEnvBool("TADBEER_SECURE_COOKIES", true),

		PolicyCacheTTL:  getEnvDuration("TADBEER_POLICY_CACHE_TTL", 5*time.Minute),
		AppPrefixes:     getEnvList("TADBEER_APP_PREFIXES", []string{"/admin"}),
		LoginPath:       getEnv("TADBEER_LOGIN_PATH", "/"),
		VerifyEmailPath: getEnv("TADBEER_VERIFY_EMAIL_PATH", "/verify-email"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("TADBEER_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TADBEER_METRICS_ENABLED", true),
		AuditEnabled:   getEnvBool("TADBEER_AUDIT_ENABLED", true),
	}
}

// Validate checks the configuration for fatal misconfigurations
func (c *Config) Validate() error {
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("TADBEER_POSTGRES_URL is required")
	}
	if c.Pipeline.ThrottleQuota <= 0 {
		return fmt.Errorf("TADBEER_THROTTLE_QUOTA must be positive, got %d", c.Pipeline.ThrottleQuota)
	}
	if c.Pipeline.ThrottleWindow <= 0 {
		return fmt.Errorf("TADBEER_THROTTLE_WINDOW must be positive, got %s", c.Pipeline.ThrottleWindow)
	}
	if c.Pipeline.PolicyCacheTTL <= 0 {
		return fmt.Errorf("TADBEER_POLICY_CACHE_TTL must be positive, got %s", c.Pipeline.PolicyCacheTTL)
	}

	switch c.Pipeline.ThrottleBackend {
	case ThrottleBackendMemory:
	case ThrottleBackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("TADBEER_REDIS_URL is required when TADBEER_THROTTLE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown throttle backend %q", c.Pipeline.ThrottleBackend)
	}

	for _, prefix := range c.Pipeline.AppPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("app prefix %q must start with /", prefix)
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
