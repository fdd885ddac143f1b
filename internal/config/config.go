// Package config provides environment configuration for the inbox engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Backend collaborator settings
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration
	TenantID       string
	StatusFilter   string

	// Poll intervals
	ListPollInterval   time.Duration
	DetailPollInterval time.Duration
	TypingPollInterval time.Duration

	// Cache settings
	CachePath     string
	CacheDebounce time.Duration

	// NATS settings (event publishing; optional)
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Backend
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:9090"),
		BackendToken:   getEnv("BACKEND_TOKEN", ""),
		BackendTimeout: getDurationEnv("BACKEND_TIMEOUT", 5*time.Second),
		TenantID:       getEnv("TENANT_ID", ""),
		StatusFilter:   getEnv("STATUS_FILTER", "open"),

		// Polling
		ListPollInterval:   getDurationEnv("LIST_POLL_INTERVAL", 2*time.Second),
		DetailPollInterval: getDurationEnv("DETAIL_POLL_INTERVAL", 2*time.Second),
		TypingPollInterval: getDurationEnv("TYPING_POLL_INTERVAL", 2*time.Second),

		// Cache
		CachePath:     getEnv("CACHE_PATH", "data/inbox-cache.bolt"),
		CacheDebounce: getDurationEnv("CACHE_DEBOUNCE", 1500*time.Millisecond),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
