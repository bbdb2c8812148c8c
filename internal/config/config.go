// Package config loads runtime settings for syncbox.
//
// Precedence: defaults, then JSON file (-c/-config), then command-line
// flags, then environment variables. Later sources win.
package config

import "time"

// S3Config locates the S3-compatible bucket used by the S3 remote.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Config holds runtime settings for the sync core.
type Config struct {
	// StoreDriver selects the durable-store backend: "sqlite" or "postgres".
	StoreDriver string
	// StoreDSN is a file path (sqlite) or connection string (postgres).
	StoreDSN string

	// MaxCacheSizeMB bounds total cached bytes; quota turns critical when
	// less than 10% of it remains.
	MaxCacheSizeMB int

	// MaxRetries is the default retry budget for enqueued operations.
	MaxRetries int
	// RetryDelay throttles consecutive attempts in the drain loop.
	RetryDelay time.Duration
	// SyncInterval drives the background drain loop.
	SyncInterval time.Duration
	// SyncBatchSize caps how many operations one batch dispatches.
	SyncBatchSize int

	// Cache TTLs per priority class.
	HighPriorityTTL   time.Duration
	MediumPriorityTTL time.Duration
	LowPriorityTTL    time.Duration

	S3 S3Config
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StoreDriver = "sqlite"
	c.StoreDSN = "syncbox.db"
	c.MaxCacheSizeMB = 50
	c.MaxRetries = 3
	c.RetryDelay = 500 * time.Millisecond
	c.SyncInterval = 30 * time.Second
	c.SyncBatchSize = 10
	c.HighPriorityTTL = 24 * time.Hour
	c.MediumPriorityTTL = 6 * time.Hour
	c.LowPriorityTTL = time.Hour
	c.S3.Region = "us-east-1"
	c.S3.Prefix = "sync"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON, flags and the environment, in that order.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	parseEnv(cfg)
	return cfg
}
