package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, "syncbox.db", c.StoreDSN)
	assert.Equal(t, 50, c.MaxCacheSizeMB)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, c.RetryDelay)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 10, c.SyncBatchSize)
	assert.Equal(t, 24*time.Hour, c.HighPriorityTTL)
	assert.Equal(t, 6*time.Hour, c.MediumPriorityTTL)
	assert.Equal(t, time.Hour, c.LowPriorityTTL)
	assert.Equal(t, "us-east-1", c.S3.Region)
	assert.Equal(t, "sync", c.S3.Prefix)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("SYNCBOX_STORE_DRIVER", "postgres")
	t.Setenv("SYNCBOX_STORE_DSN", "postgres://localhost/syncbox")
	t.Setenv("SYNCBOX_MAX_CACHE_SIZE_MB", "200")
	t.Setenv("SYNCBOX_SYNC_INTERVAL", "2m")
	t.Setenv("SYNCBOX_S3_BUCKET", "sync-data")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "postgres", c.StoreDriver)
	assert.Equal(t, "postgres://localhost/syncbox", c.StoreDSN)
	assert.Equal(t, 200, c.MaxCacheSizeMB)
	assert.Equal(t, 2*time.Minute, c.SyncInterval)
	assert.Equal(t, "sync-data", c.S3.Bucket)
}

func TestParseEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SYNCBOX_MAX_RETRIES", "lots")
	t.Setenv("SYNCBOX_RETRY_DELAY", "soon")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, c.RetryDelay)
}
