// Package config loads and validates service configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Notify        NotifyConfig
	Sweeper       SweeperConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
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

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool
}

// CacheConfig holds the membership cache configuration. RedisAddr may be
// empty, leaving the in-process cache on its own.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	LocalSize     int
	TTL           time.Duration
}

// NotifyConfig holds invitation delivery configuration. SMTP and webhook
// delivery are both optional; with neither configured invitations are
// logged instead.
type NotifyConfig struct {
	SMTPAddr      string
	SMTPFrom      string
	BaseURL       string
	WebhookURL    string
	WebhookSecret string
}

// SweeperConfig holds the expired-invitation sweeper configuration.
type SweeperConfig struct {
	Enabled  bool
	Schedule string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from LEDGERLOCK_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("LEDGERLOCK_HOST", "0.0.0.0"),
			Port:            getEnv("LEDGERLOCK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("LEDGERLOCK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("LEDGERLOCK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("LEDGERLOCK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("LEDGERLOCK_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("LEDGERLOCK_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("LEDGERLOCK_DATABASE_URL", ""),
			ReplicaURLs: getEnvList("LEDGERLOCK_DATABASE_REPLICA_URLS"),
			MaxConns:    getEnvInt("LEDGERLOCK_DATABASE_MAX_CONNS", 25),
			MinConns:    getEnvInt("LEDGERLOCK_DATABASE_MIN_CONNS", 5),
			Timeout:     getEnvDuration("LEDGERLOCK_DATABASE_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("LEDGERLOCK_DATABASE_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("LEDGERLOCK_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate: getEnvBool("LEDGERLOCK_DATABASE_AUTO_MIGRATE", true),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("LEDGERLOCK_REDIS_ADDR", ""),
			RedisPassword: getEnv("LEDGERLOCK_REDIS_PASSWORD", ""),
			LocalSize:     getEnvInt("LEDGERLOCK_CACHE_LOCAL_SIZE", 4096),
			TTL:           getEnvDuration("LEDGERLOCK_CACHE_TTL", 30*time.Second),
		},
		Notify: NotifyConfig{
			SMTPAddr:      getEnv("LEDGERLOCK_SMTP_ADDR", ""),
			SMTPFrom:      getEnv("LEDGERLOCK_SMTP_FROM", "no-reply@ledgerlock.local"),
			BaseURL:       getEnv("LEDGERLOCK_BASE_URL", "http://localhost:8080"),
			WebhookURL:    getEnv("LEDGERLOCK_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("LEDGERLOCK_WEBHOOK_SECRET", ""),
		},
		Sweeper: SweeperConfig{
			Enabled:  getEnvBool("LEDGERLOCK_SWEEPER_ENABLED", true),
			Schedule: getEnv("LEDGERLOCK_SWEEPER_SCHEDULE", "@hourly"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("LEDGERLOCK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("LEDGERLOCK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max conns must be at least min conns")
	}
	if c.Notify.SMTPAddr != "" && c.Notify.SMTPFrom == "" {
		return fmt.Errorf("SMTP from address is required when SMTP is configured")
	}
	if c.Sweeper.Enabled && c.Sweeper.Schedule == "" {
		return fmt.Errorf("sweeper schedule is required when the sweeper is enabled")
	}
	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
