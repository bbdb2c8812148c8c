package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays Config with environment variables. Environment wins
// over every other source so deployments can override packaged configs.
func parseEnv(cfg *Config) {
	if v := os.Getenv("SYNCBOX_STORE_DRIVER"); v != "" {
		cfg.StoreDriver = v
	}
	if v := os.Getenv("SYNCBOX_STORE_DSN"); v != "" {
		cfg.StoreDSN = v
	}
	if v := os.Getenv("SYNCBOX_MAX_CACHE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCacheSizeMB = n
		}
	}
	if v := os.Getenv("SYNCBOX_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("SYNCBOX_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
	if v := os.Getenv("SYNCBOX_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryDelay = d
		}
	}
	if v := os.Getenv("SYNCBOX_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("SYNCBOX_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("SYNCBOX_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("SYNCBOX_S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("SYNCBOX_S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("SYNCBOX_S3_PREFIX"); v != "" {
		cfg.S3.Prefix = v
	}
}
