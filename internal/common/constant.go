package common

import "time"

// Retention windows applied by storage housekeeping.
const (
	CompletedRetention = 7 * 24 * time.Hour
	FailedRetention    = 30 * 24 * time.Hour
)

// EvictionTargetRatio is the fraction of the configured cache maximum that
// eviction shrinks usage down to.
const EvictionTargetRatio = 0.8

// CriticalQuotaRatio marks the quota as critical when available space drops
// below this fraction of the total.
const CriticalQuotaRatio = 0.1
