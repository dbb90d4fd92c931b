package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AdminAddr)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 5*time.Minute, cfg.MetricsTTL)
	assert.Equal(t, "X-Tenant-ID", cfg.TenantHeader)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing stripe key", env: map[string]string{"STRIPE_SECRET_KEY": ""}},
		{name: "postgres without dsn", env: map[string]string{"STORAGE_BACKEND": "postgres"}},
		{name: "firestore without project", env: map[string]string{"STORAGE_BACKEND": "firestore"}},
		{name: "unknown storage", env: map[string]string{"STORAGE_BACKEND": "mysql"}},
		{name: "unknown cache", env: map[string]string{"CACHE_BACKEND": "memcached"}},
		{name: "bad ttl", env: map[string]string{"METRICS_CACHE_TTL": "soon"}},
		{name: "zero ttl", env: map[string]string{"METRICS_CACHE_TTL": "0s"}},
		{name: "bad cache size", env: map[string]string{"CACHE_SIZE": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_Backends(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clubsync")
	t.Setenv("CACHE_BACKEND", "tiered")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StorageBackend)
	assert.Equal(t, "tiered", cfg.CacheBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.IsDevelopment())
}
