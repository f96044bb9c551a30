// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server and CLI configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	PublicURL   string // base URL used in issued locators; derived from the request when empty

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend ("local", "s3" or "memory", default: "local")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Auth
	JWTSecret  string
	LocatorTTL time.Duration

	// Transfers
	TransferTimeout     time.Duration
	TransferConcurrency int
	RemoteToken         string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:         envOr("METRICS_ADDR", ":9090"),
		PublicURL:           envOr("PUBLIC_URL", ""),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		StorageBackend:      envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath:    envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:          envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:            envOr("S3_BUCKET", "fsaccess"),
		S3Prefix:            envOr("S3_PREFIX", ""),
		S3AccessKey:         envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:            envOr("S3_REGION", "us-east-1"),
		S3UseSSL:            envBool("S3_USE_SSL", false),
		JWTSecret:           envOr("JWT_SECRET", ""),
		LocatorTTL:          envDuration("LOCATOR_TTL", 15*time.Minute),
		TransferTimeout:     envDuration("TRANSFER_TIMEOUT", time.Second),
		TransferConcurrency: envInt("TRANSFER_CONCURRENCY", 4),
		RemoteToken:         envOr("FSACCESS_TOKEN", ""),
	}

	if cfg.TransferTimeout <= 0 {
		return nil, fmt.Errorf("TRANSFER_TIMEOUT must be positive, got %s", cfg.TransferTimeout)
	}
	if cfg.TransferConcurrency < 1 {
		return nil, fmt.Errorf("TRANSFER_CONCURRENCY must be at least 1, got %d", cfg.TransferConcurrency)
	}
	switch cfg.StorageBackend {
	case "local", "s3", "memory":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts Go durations ("1.5s") or plain milliseconds ("1500").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
