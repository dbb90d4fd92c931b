package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the daemon configuration, read from the environment
type Config struct {
	AdminAddr   string
	MetricsAddr string

	Env      string
	LogLevel string

	// StorageBackend is one of "memory", "postgres", "firestore"
	StorageBackend    string
	PostgresDSN       string
	PostgresMigrate   bool
	FirestoreProject  string
	FirestorePrefix   string
	MemorySeedTenant  string
	MemorySeedAccount string

	// CacheBackend is one of "none", "memory", "redis", "tiered"
	CacheBackend   string
	CacheSize      int
	MetricsTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	StripeAPIKey        string
	StripeWebhookSecret string
	StripeBackendURL    string

	// TenantHeader carries the caller's tenant scope; empty disables scoping
	TenantHeader string

	ShutdownTimeout time.Duration
}

// LoadConfig reads the configuration from environment variables
func LoadConfig() (*Config, error) {
	metricsTTL, err := getDuration("METRICS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cacheSize, err := getInt("CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AdminAddr:           getEnv("ADMIN_ADDR", ":8080"),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9090"),
		Env:                 getEnv("APP_ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StorageBackend:      strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
		PostgresDSN:         getEnv("POSTGRES_DSN", ""),
		PostgresMigrate:     getEnv("POSTGRES_MIGRATE", "true") == "true",
		FirestoreProject:    getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestorePrefix:     getEnv("FIRESTORE_COLLECTION_PREFIX", "clubsync_"),
		MemorySeedTenant:    getEnv("MEMORY_SEED_TENANT", ""),
		MemorySeedAccount:   getEnv("MEMORY_SEED_ACCOUNT", ""),
		CacheBackend:        strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		CacheSize:           cacheSize,
		MetricsTTL:          metricsTTL,
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             redisDB,
		RedisKeyPrefix:      getEnv("REDIS_KEY_PREFIX", "clubsync:"),
		StripeAPIKey:        getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBackendURL:    getEnv("STRIPE_BACKEND_URL", ""),
		TenantHeader:        getEnv("TENANT_HEADER", "X-Tenant-ID"),
		ShutdownTimeout:     shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selections and their required settings
func (c *Config) Validate() error {
	if c.StripeAPIKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	switch c.StorageBackend {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	case "firestore":
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.CacheBackend {
	case "none", "memory", "redis", "tiered":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.MetricsTTL <= 0 {
		return fmt.Errorf("METRICS_CACHE_TTL must be positive")
	}
	return nil
}

// IsDevelopment reports whether human-readable console logging is wanted
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
