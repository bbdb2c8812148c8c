package config

import (
	"encoding/json"
	"os"

	"github.com/dkarpov/syncbox/internal/flagx"
	"github.com/dkarpov/syncbox/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// use timex.Duration so JSON can say "30s" or integer nanoseconds.
type JsonConfig struct {
	StoreDriver       string         `json:"store_driver"`
	StoreDSN          string         `json:"store_dsn"`
	MaxCacheSizeMB    *int           `json:"max_cache_size_mb"`
	MaxRetries        *int           `json:"max_retries"`
	RetryDelay        timex.Duration `json:"retry_delay"`
	SyncInterval      timex.Duration `json:"sync_interval"`
	SyncBatchSize     *int           `json:"sync_batch_size"`
	HighPriorityTTL   timex.Duration `json:"high_priority_ttl"`
	MediumPriorityTTL timex.Duration `json:"medium_priority_ttl"`
	LowPriorityTTL    timex.Duration `json:"low_priority_ttl"`

	S3Endpoint  string `json:"s3_endpoint"`
	S3Region    string `json:"s3_region"`
	S3Bucket    string `json:"s3_bucket"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
	S3Prefix    string `json:"s3_prefix"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// Missing file path means no JSON source. Read or unmarshal errors panic;
// callers that care should recover.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.StoreDriver != "" {
		cfg.StoreDriver = jc.StoreDriver
	}
	if jc.StoreDSN != "" {
		cfg.StoreDSN = jc.StoreDSN
	}
	if jc.MaxCacheSizeMB != nil {
		cfg.MaxCacheSizeMB = *jc.MaxCacheSizeMB
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.RetryDelay.Duration != 0 {
		cfg.RetryDelay = jc.RetryDelay.Duration
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncBatchSize != nil {
		cfg.SyncBatchSize = *jc.SyncBatchSize
	}
	if jc.HighPriorityTTL.Duration != 0 {
		cfg.HighPriorityTTL = jc.HighPriorityTTL.Duration
	}
	if jc.MediumPriorityTTL.Duration != 0 {
		cfg.MediumPriorityTTL = jc.MediumPriorityTTL.Duration
	}
	if jc.LowPriorityTTL.Duration != 0 {
		cfg.LowPriorityTTL = jc.LowPriorityTTL.Duration
	}
	if jc.S3Endpoint != "" {
		cfg.S3.Endpoint = jc.S3Endpoint
	}
	if jc.S3Region != "" {
		cfg.S3.Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3.Bucket = jc.S3Bucket
	}
	if jc.S3AccessKey != "" {
		cfg.S3.AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3.SecretKey = jc.S3SecretKey
	}
	if jc.S3Prefix != "" {
		cfg.S3.Prefix = jc.S3Prefix
	}
}
