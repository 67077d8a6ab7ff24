// Package config provides configuration management with 2-tier priority:
// Environment variables > Default values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Proxy       ProxyConfig
	Security    SecurityConfig
	Retry       RetryConfig
	Database    DatabaseConfig
	LogRotation LogRotationConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

// LogRotationConfig holds log rotation settings powered by lumberjack.
type LogRotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoggingConfig holds request-log retention settings (spec.md §6).
type LoggingConfig struct {
	RetentionDays int
	CleanupHour   int // 0-23, hour of day the retention sweep runs
	Debug         bool
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled       bool
	MaxRequests   int
	WindowSeconds int
}

// ProxyConfig holds proxy server configuration.
type ProxyConfig struct {
	Host            string
	Port            int
	HTTPTimeout     time.Duration
	LogLevel        string
}

// SecurityConfig holds authentication configuration for both ingress API
// keys and the admin token surface.
type SecurityConfig struct {
	EncryptionKey      string // base64url, 32 bytes decoded; empty generates an ephemeral key
	APIKeyPrefix       string
	APIKeyLength       int
	AdminUsername      string
	AdminPassword      string
	AdminTokenTTLSeconds int
}

// RetryConfig holds the retry/failover controller's tunables (spec.md §4.11).
type RetryConfig struct {
	MaxAttempts  int
	DelayMS      int
	CounterPersist bool // spec.md §9 Open Question: persist round-robin counters across restarts
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			HTTPTimeout: 60 * time.Second,
			LogLevel:    "INFO",
		},
		Security: SecurityConfig{
			APIKeyPrefix:         "lgw-",
			APIKeyLength:         32,
			AdminTokenTTLSeconds: 86400,
		},
		Retry: RetryConfig{
			MaxAttempts: 2,
			DelayMS:     500,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   100,
			WindowSeconds: 60,
		},
		Logging: LoggingConfig{
			RetentionDays: 30,
			CleanupHour:   3,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return &ConfigError{Field: "proxy.port", Message: "must be between 1 and 65535"}
	}
	if c.Retry.MaxAttempts < 0 {
		return &ConfigError{Field: "retry.max_attempts", Message: "must not be negative"}
	}
	if c.Logging.CleanupHour < 0 || c.Logging.CleanupHour > 23 {
		return &ConfigError{Field: "logging.cleanup_hour", Message: "must be between 0 and 23"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Helper functions for environment variable parsing.

func getEnvStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	lower := strings.ToLower(v)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "on"
}

func getEnvDurationSeconds(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}
